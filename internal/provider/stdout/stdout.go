// Package stdout implements a Provider that prints emails to standard output
// instead of delivering them. It backs the --dry-run mode of send-email.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/shineum/emailer-lite/internal/email"
)

const separator = "========================================\n"

// Provider prints email messages in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
	// raw also prints the rendered RFC 5322 message.
	raw bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithRaw makes the provider print the rendered message after the summary.
func WithRaw() Option {
	return func(p *Provider) {
		p.raw = true
	}
}

// New creates a new stdout Provider that writes to os.Stdout.
func New(opts ...Option) *Provider {
	return NewWithWriter(os.Stdout, opts...)
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
func NewWithWriter(w io.Writer, opts ...Option) *Provider {
	p := &Provider{writer: w}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send prints the envelope. Bcc recipients are listed since nothing is
// actually delivered.
func (p *Provider) Send(_ context.Context, env *email.Envelope) error {
	if len(env.Recipients()) == 0 {
		return email.ErrNoRecipients
	}

	var b strings.Builder

	b.WriteString(separator)
	fmt.Fprintf(&b, "From: %s\n", env.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(env.To, ", "))

	if len(env.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(env.Cc, ", "))
	}
	if len(env.Bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", strings.Join(env.Bcc, ", "))
	}

	fmt.Fprintf(&b, "Subject: %s\n", env.Subject)
	if env.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: %s\n", env.MessageID)
	}

	kind := "text"
	if env.HTML {
		kind = "html"
	}
	fmt.Fprintf(&b, "Body (%s):\n", kind)
	b.WriteString(env.Body + "\n")

	if len(env.Attachments) > 0 {
		attachments := lo.Map(env.Attachments, func(att email.Attachment, _ int) string {
			return fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content)))
		})
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	if p.raw && len(env.Raw) > 0 {
		b.WriteString(separator)
		b.Write(env.Raw)
		if !strings.HasSuffix(string(env.Raw), "\n") {
			b.WriteString("\n")
		}
	}

	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return fmt.Errorf("%w: writing message: %w", email.ErrTransport, err)
	}
	return nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
