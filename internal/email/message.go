// Package email defines the outbound message model shared by the dispatcher
// and the delivery providers.
package email

import (
	"strings"

	"github.com/samber/lo"
)

// Message holds the caller-supplied parameters of a single send.
type Message struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	// HTML marks Body as text/html instead of text/plain.
	HTML bool
	// Attachments are file paths, attached in order.
	Attachments []string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Envelope is a fully built message ready for delivery. To and Cc are the
// header-visible recipients; Bcc recipients are only carried in the envelope.
type Envelope struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	HTML        bool
	Attachments []Attachment
	MessageID   string

	// Raw is the rendered RFC 5322 message.
	Raw []byte
}

// Recipients returns the SMTP envelope recipient list: To, then Cc, then Bcc.
func (e *Envelope) Recipients() []string {
	rcpts := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	rcpts = append(rcpts, e.To...)
	rcpts = append(rcpts, e.Cc...)
	rcpts = append(rcpts, e.Bcc...)
	return rcpts
}

// NormalizeAddresses trims every address and drops the empty ones. Order is
// kept and duplicates are not removed.
func NormalizeAddresses(addrs ...string) []string {
	return lo.FilterMap(addrs, func(addr string, _ int) (string, bool) {
		addr = strings.TrimSpace(addr)
		return addr, addr != ""
	})
}

// SplitAddresses splits a comma-separated address list, as accepted on the
// command line.
func SplitAddresses(list string) []string {
	if list == "" {
		return nil
	}
	return NormalizeAddresses(strings.Split(list, ",")...)
}
