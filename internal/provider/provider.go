// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/emailer-lite/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// Each provider delivers a fully built envelope to its target service
// (an SMTP server, AWS SES, Microsoft Graph or stdout).
type Provider interface {
	// Send delivers the envelope to every recipient returned by
	// env.Recipients. It returns nil only if the whole delivery succeeded.
	Send(ctx context.Context, env *email.Envelope) error

	// Name returns the human-readable name of this provider.
	Name() string
}
