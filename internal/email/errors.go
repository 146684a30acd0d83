package email

import "errors"

var (
	// ErrNoRecipients is returned when To, Cc and Bcc are all empty.
	ErrNoRecipients = errors.New("no recipients provided")

	// ErrAttachmentNotFound is returned when an attachment path does not
	// exist. Nothing is sent.
	ErrAttachmentNotFound = errors.New("attachment file not found")

	// ErrAuthentication is returned when the server rejects the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConnectionClosed is returned when the server drops the connection
	// mid-session, typically because of a port/TLS-mode mismatch.
	ErrConnectionClosed = errors.New("connection unexpectedly closed by the server")

	// ErrTransport wraps any other delivery failure.
	ErrTransport = errors.New("transport error")
)
