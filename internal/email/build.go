package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// headerSanitizer strips line breaks from header values to prevent header
// injection.
var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// Build renders msg as a multipart/mixed message from sender with exactly one
// body part followed by the attachments. Bcc recipients are kept on the
// returned Envelope but never written to a header.
func Build(from string, msg Message, attachments []Attachment, date time.Time) (*Envelope, error) {
	env := &Envelope{
		From:        from,
		To:          NormalizeAddresses(msg.To...),
		Cc:          NormalizeAddresses(msg.Cc...),
		Bcc:         NormalizeAddresses(msg.Bcc...),
		Subject:     msg.Subject,
		Body:        msg.Body,
		HTML:        msg.HTML,
		Attachments: attachments,
		MessageID:   newMessageID(from),
	}

	var buf bytes.Buffer

	writeHeader(&buf, "From", env.From)
	writeHeader(&buf, "To", strings.Join(env.To, ", "))
	if len(env.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(env.Cc, ", "))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", headerSanitizer.Replace(env.Subject)))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", env.MessageID)
	writeHeader(&buf, "MIME-Version", "1.0")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	if env.HTML {
		bodyHeader.Set("Content-Type", `text/html; charset="utf-8"`)
	} else {
		bodyHeader.Set("Content-Type", `text/plain; charset="utf-8"`)
	}
	bodyHeader.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(env.Body)); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}

	for _, att := range env.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}

		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", mime.FormatMediaType(contentType, map[string]string{"name": att.Filename}))
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))

		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	env.Raw = buf.Bytes()
	return env, nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, headerSanitizer.Replace(value))
}

// newMessageID returns a Message-ID in the sender's domain.
func newMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = strings.Trim(from[i+1:], "<> ")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
