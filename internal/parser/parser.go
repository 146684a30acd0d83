// Package parser reads rendered RFC 5322 messages back into an email.Envelope,
// for inspecting what actually went over the wire.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/shineum/emailer-lite/internal/email"
)

var headerDecoder = &mime.WordDecoder{}

// Parse parses a raw message into an Envelope. Only header-visible
// recipients can be recovered, so Bcc is populated only if a Bcc header is
// present. Raw is set to the input.
func Parse(raw []byte) (*email.Envelope, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Envelope{Raw: raw}

	result.From = msg.Header.Get("From")
	result.Subject = decodeHeader(msg.Header.Get("Subject"))
	result.MessageID = msg.Header.Get("Message-Id")
	result.To = parseAddressList(msg.Header.Get("To"))
	result.Cc = parseAddressList(msg.Header.Get("Cc"))
	result.Bcc = parseAddressList(msg.Header.Get("Bcc"))

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read message body: %w", readErr)
		}
		result.Body = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		if err := parseMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	result.Body = string(body)
	result.HTML = mediaType == "text/html"
	if mediaType != "text/plain" && mediaType != "text/html" {
		slog.Warn("unrecognized top-level content type",
			"content_type", mediaType,
		)
	}

	return result, nil
}

// parseMultipart walks a multipart body. The first text/plain or text/html
// part becomes the body; parts with an attachment disposition or a filename
// become attachments.
func parseMultipart(body io.Reader, boundary string, result *email.Envelope) error {
	reader := multipart.NewReader(body, boundary)
	haveBody := result.Body != ""

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nestedBoundary := params["boundary"]
			if nestedBoundary == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, nestedBoundary, result); err != nil {
				slog.Warn("failed to parse nested multipart",
					"error", err,
				)
			}
			haveBody = result.Body != ""
			continue
		}

		content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			slog.Warn("failed to read part content",
				"content_type", mediaType,
				"error", err,
			)
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		filename := extractFilename(part, params)
		isAttachment := strings.HasPrefix(strings.ToLower(disposition), "attachment")

		switch {
		case !isAttachment && !haveBody && (mediaType == "text/plain" || mediaType == "text/html"):
			result.Body = string(content)
			result.HTML = mediaType == "text/html"
			haveBody = true
		case isAttachment || filename != "":
			if filename == "" {
				filename = fallbackFilename(mediaType)
			}
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
		default:
			slog.Warn("unrecognized MIME part, skipping",
				"content_type", mediaType,
				"disposition", disposition,
			)
		}
	}

	return nil
}

// decodeBody reads r and undoes the given Content-Transfer-Encoding. The
// multipart reader already decodes quoted-printable parts and drops the
// header, so the quoted-printable branch only fires for top-level bodies.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))

	switch encoding {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

// extractFilename returns the Content-Disposition filename, falling back to
// the Content-Type name parameter.
func extractFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return params["name"]
}

func fallbackFilename(mediaType string) string {
	parts := strings.SplitN(mediaType, "/", 2)
	if len(parts) == 2 {
		return "attachment." + parts[1]
	}
	return "attachment"
}

func decodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseAddressList splits a comma-separated address list into individual
// addresses, falling back to a plain split when the list is not RFC 5322.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		return email.SplitAddresses(raw)
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
