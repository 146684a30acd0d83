// Package smtptest provides an in-process SMTP server that records every
// delivered message, for testing SMTP clients end to end.
package smtptest

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/shineum/emailer-lite/internal/email"
	"github.com/shineum/emailer-lite/internal/parser"
	tlsutil "github.com/shineum/emailer-lite/internal/tls"
)

// Options configures a Server.
type Options struct {
	// Hostname is the server hostname used in the greeting and EHLO replies.
	Hostname string

	// ImplicitTLS makes the listener speak TLS from the first byte, as on
	// port 465. Otherwise STARTTLS is advertised.
	ImplicitTLS bool

	// DisableSTARTTLS stops the plaintext listener from advertising STARTTLS.
	DisableSTARTTLS bool

	// Username and Password, when both set, are required via AUTH before
	// MAIL FROM is accepted.
	Username string
	Password string

	// DropAfter closes the connection without replying when the named
	// command (e.g. "EHLO", "STARTTLS", "AUTH") is received.
	DropAfter string

	// RejectRecipients lists addresses answered with 550 at RCPT TO.
	RejectRecipients []string
}

// Delivery is one message accepted by the server.
type Delivery struct {
	From       string
	Recipients []string
	Data       []byte
	// TLS reports whether the transaction happened over TLS.
	TLS bool
	// AuthUser is the authenticated identity, if any.
	AuthUser string
}

// Envelope parses Data.
func (d Delivery) Envelope() (*email.Envelope, error) {
	return parser.Parse(d.Data)
}

// Server is an SMTP server listening on a loopback port.
type Server struct {
	opts      Options
	auth      *authenticator
	listener  net.Listener
	tlsConfig *tls.Config
	cert      *tls.Certificate

	mu         sync.Mutex
	deliveries []Delivery

	// wg tracks in-flight session goroutines.
	wg sync.WaitGroup
}

// Start listens on 127.0.0.1 on a random port and serves until Close.
func Start(opts Options) (*Server, error) {
	if opts.Hostname == "" {
		opts.Hostname = "localhost"
	}

	cert, err := tlsutil.GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("failed to generate server certificate: %w", err)
	}

	s := &Server{
		opts:      opts,
		auth:      newAuthenticator(opts.Username, opts.Password),
		tlsConfig: tlsutil.ServerConfig(cert),
		cert:      cert,
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if opts.ImplicitTLS {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln

	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Listener closed
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(s, conn).handle()
		}()
	}
}

// Close stops the listener and waits for in-flight sessions to finish.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listener IP.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// ClientTLSConfig returns a client TLS configuration that trusts the
// server certificate.
func (s *Server) ClientTLSConfig() *tls.Config {
	cfg, err := tlsutil.TrustingConfig(s.cert)
	if err != nil {
		slog.Error("failed to build client TLS config", "error", err)
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return cfg
}

// CertificatePEM returns the PEM encoded server certificate.
func (s *Server) CertificatePEM() []byte {
	return tlsutil.CertificatePEM(s.cert)
}

// Messages returns the deliveries accepted so far, in order.
func (s *Server) Messages() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

func (s *Server) record(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
}
