// Package smtp implements a Provider that delivers messages over a single
// authenticated SMTP session, using implicit TLS on port 465 and STARTTLS on
// every other port.
package smtp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/shineum/emailer-lite/internal/email"
)

// ImplicitTLSPort is the submission port on which TLS starts at connect time.
const ImplicitTLSPort = 465

// defaultLocalName is sent in EHLO when no local name is configured.
const defaultLocalName = "localhost"

// Config holds the settings of an SMTP Provider.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// LocalName is the hostname sent in EHLO.
	LocalName string

	// TLSConfig is used for both implicit TLS and STARTTLS. ServerName
	// defaults to Host.
	TLSConfig *tls.Config

	// Timeout bounds the whole session when ctx carries no deadline.
	Timeout time.Duration
}

// Provider sends envelopes through an SMTP server.
type Provider struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithTransport replaces the network transport, used for testing.
func WithTransport(t Transport) Option {
	return func(p *Provider) {
		p.transport = t
	}
}

// WithLogger sets the logger used for session diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New creates an SMTP Provider. No network I/O happens until Send.
func New(cfg Config, opts ...Option) *Provider {
	if cfg.LocalName == "" {
		cfg.LocalName = defaultLocalName
	}

	p := &Provider{
		cfg:       cfg,
		transport: NetTransport{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// ImplicitTLS reports whether the session starts with a TLS handshake
// instead of upgrading with STARTTLS.
func (p *Provider) ImplicitTLS() bool {
	return p.cfg.Port == ImplicitTLSPort
}

// Addr returns the host:port dialed by Send.
func (p *Provider) Addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

// Send runs one SMTP session: connect, EHLO, STARTTLS unless implicit TLS is
// in use, AUTH PLAIN, MAIL/RCPT for every envelope recipient, DATA and QUIT.
// The connection is always closed. Failures are classified as
// email.ErrAuthentication, email.ErrConnectionClosed or email.ErrTransport.
func (p *Provider) Send(ctx context.Context, env *email.Envelope) error {
	rcpts := env.Recipients()
	if len(rcpts) == 0 {
		return email.ErrNoRecipients
	}

	if _, ok := ctx.Deadline(); !ok && p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	implicit := p.ImplicitTLS()
	tlsConfig := p.tlsConfig()
	log := p.logger.With("addr", p.Addr(), "implicit_tls", implicit)

	sess, err := p.transport.Dial(ctx, p.Addr(), p.cfg.Host, implicit, tlsConfig)
	if err != nil {
		return classify(stageConnect, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("failed to close SMTP connection", "error", err)
		}
	}()
	log.Debug("connected to SMTP server")

	if err := sess.Hello(p.cfg.LocalName); err != nil {
		return classify(stageHello, err)
	}

	if !implicit {
		if err := sess.StartTLS(tlsConfig); err != nil {
			return classify(stageStartTLS, err)
		}
		log.Debug("upgraded connection with STARTTLS")
	}

	if err := sess.Auth(p.cfg.Username, p.cfg.Password); err != nil {
		return classify(stageAuth, err)
	}

	if err := sess.Send(env.From, rcpts, env.Raw); err != nil {
		return classify(stageSend, err)
	}

	if err := sess.Quit(); err != nil {
		log.Debug("QUIT failed after message was accepted", "error", err)
	}

	log.Debug("message accepted by SMTP server",
		"message_id", env.MessageID,
		"recipients", len(rcpts),
	)
	return nil
}

// tlsConfig returns the configured TLS settings with ServerName defaulted to
// the SMTP host.
func (p *Provider) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if p.cfg.TLSConfig != nil {
		cfg = p.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.cfg.Host
	}
	return cfg
}
