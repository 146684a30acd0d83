// Package mailer builds messages from caller parameters and hands them to a
// delivery provider. The default provider speaks SMTP to the configured
// server.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/shineum/emailer-lite/internal/config"
	"github.com/shineum/emailer-lite/internal/email"
	"github.com/shineum/emailer-lite/internal/provider"
	"github.com/shineum/emailer-lite/internal/provider/smtp"
)

// Dispatcher sends messages on behalf of a single sender account. It holds
// no mutable state and is safe for concurrent use.
type Dispatcher struct {
	settings config.Settings
	provider provider.Provider
	fs       afero.Fs
	logger   *slog.Logger
	now      func() time.Time

	smtpOpts smtpOptions
}

type smtpOptions struct {
	tlsConfig *tls.Config
	timeout   time.Duration
	localName string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithProvider replaces the default SMTP provider.
func WithProvider(p provider.Provider) Option {
	return func(d *Dispatcher) {
		d.provider = p
	}
}

// WithFs sets the filesystem attachments are read from.
func WithFs(fs afero.Fs) Option {
	return func(d *Dispatcher) {
		d.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithClock sets the time source used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithTLSConfig sets the TLS configuration of the default SMTP provider.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(d *Dispatcher) {
		d.smtpOpts.tlsConfig = cfg
	}
}

// WithTimeout bounds each SMTP session of the default provider.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.smtpOpts.timeout = timeout
	}
}

// WithLocalName sets the EHLO hostname of the default SMTP provider.
func WithLocalName(name string) Option {
	return func(d *Dispatcher) {
		d.smtpOpts.localName = name
	}
}

// New validates settings and returns a Dispatcher. It performs no network
// I/O.
func New(settings config.Settings, opts ...Option) (*Dispatcher, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		settings: settings,
		fs:       afero.NewOsFs(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.provider == nil {
		d.provider = smtp.New(smtp.Config{
			Host:      settings.SMTPServer,
			Port:      settings.SMTPPort,
			Username:  settings.Email,
			Password:  settings.Password,
			LocalName: d.smtpOpts.localName,
			TLSConfig: d.smtpOpts.tlsConfig,
			Timeout:   d.smtpOpts.timeout,
		}, smtp.WithLogger(d.logger))
	}
	return d, nil
}

// Provider returns the delivery provider in use.
func (d *Dispatcher) Provider() provider.Provider {
	return d.provider
}

// ImplicitTLS reports whether SMTP sessions open with TLS instead of
// upgrading via STARTTLS.
func (d *Dispatcher) ImplicitTLS() bool {
	return d.settings.SMTPPort == smtp.ImplicitTLSPort
}

// SendOption adds optional parts to a message.
type SendOption func(*email.Message)

// Cc adds carbon-copy recipients.
func Cc(addrs ...string) SendOption {
	return func(m *email.Message) {
		m.Cc = append(m.Cc, addrs...)
	}
}

// Bcc adds blind carbon-copy recipients. They are delivered to but never
// written to a header.
func Bcc(addrs ...string) SendOption {
	return func(m *email.Message) {
		m.Bcc = append(m.Bcc, addrs...)
	}
}

// Attach adds file attachments by path.
func Attach(paths ...string) SendOption {
	return func(m *email.Message) {
		m.Attachments = append(m.Attachments, paths...)
	}
}

// Send builds and delivers a message. It returns nil only if the provider
// accepted the message for every recipient.
func (d *Dispatcher) Send(ctx context.Context, to []string, subject, body string, html bool, opts ...SendOption) error {
	msg := email.Message{
		To:      to,
		Subject: subject,
		Body:    body,
		HTML:    html,
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return d.SendMessage(ctx, msg)
}

// SendHTML is Send with an HTML body.
func (d *Dispatcher) SendHTML(ctx context.Context, to []string, subject, body string, opts ...SendOption) error {
	return d.Send(ctx, to, subject, body, true, opts...)
}

// SendTemplate renders tmpl with vars and sends the result.
func (d *Dispatcher) SendTemplate(ctx context.Context, to []string, subject, tmpl string, vars map[string]string, html bool, opts ...SendOption) error {
	return d.Send(ctx, to, subject, email.Render(tmpl, vars), html, opts...)
}

// SendMessage delivers msg. Attachments are read before any network I/O; a
// missing one fails the send with email.ErrAttachmentNotFound.
func (d *Dispatcher) SendMessage(ctx context.Context, msg email.Message) error {
	msg.To = email.NormalizeAddresses(msg.To...)
	msg.Cc = email.NormalizeAddresses(msg.Cc...)
	msg.Bcc = email.NormalizeAddresses(msg.Bcc...)
	if len(msg.To)+len(msg.Cc)+len(msg.Bcc) == 0 {
		return email.ErrNoRecipients
	}

	attachments, err := email.LoadAttachments(d.fs, msg.Attachments)
	if err != nil {
		d.logger.Error("failed to load attachments", "error", err)
		return err
	}

	env, err := email.Build(d.settings.Email, msg, attachments, d.now())
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if err := d.provider.Send(ctx, env); err != nil {
		d.logger.Error("failed to send email",
			"provider", d.provider.Name(),
			"message_id", env.MessageID,
			"error", err,
		)
		return err
	}

	d.logger.Info("email sent",
		"provider", d.provider.Name(),
		"message_id", env.MessageID,
		"recipients", len(env.Recipients()),
		"attachments", len(env.Attachments),
	)
	return nil
}
