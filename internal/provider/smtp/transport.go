package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/wneessen/go-mail/smtp"
)

// Transport opens SMTP sessions.
type Transport interface {
	// Dial connects to addr. host is the server name used for
	// authentication. With implicitTLS the TLS handshake happens before the
	// server greeting is read.
	Dial(ctx context.Context, addr, host string, implicitTLS bool, tlsConfig *tls.Config) (Session, error)
}

// Session is one open SMTP connection.
type Session interface {
	Hello(localName string) error
	// StartTLS upgrades the connection and repeats EHLO.
	StartTLS(tlsConfig *tls.Config) error
	// Auth authenticates with AUTH PLAIN.
	Auth(username, password string) error
	// Send issues MAIL FROM, one RCPT TO per recipient, and DATA.
	Send(from string, rcpts []string, data []byte) error
	Quit() error
	Close() error
}

// NetTransport dials real TCP connections and drives them with the
// go-mail SMTP client.
type NetTransport struct {
	Dialer net.Dialer
}

// Dial implements Transport.
func (t NetTransport) Dial(ctx context.Context, addr, host string, implicitTLS bool, tlsConfig *tls.Config) (Session, error) {
	var (
		conn net.Conn
		err  error
	)
	if implicitTLS {
		td := tls.Dialer{NetDialer: &t.Dialer, Config: tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = t.Dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set connection deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &netSession{client: client, host: host}, nil
}

type netSession struct {
	client *smtp.Client
	host   string
}

func (s *netSession) Hello(localName string) error {
	return s.client.Hello(localName)
}

func (s *netSession) StartTLS(tlsConfig *tls.Config) error {
	if ok, _ := s.client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server does not advertise STARTTLS")
	}
	return s.client.StartTLS(tlsConfig)
}

func (s *netSession) Auth(username, password string) error {
	return s.client.Auth(smtp.PlainAuth("", username, password, s.host))
}

func (s *netSession) Send(from string, rcpts []string, data []byte) error {
	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := s.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	return nil
}

func (s *netSession) Quit() error {
	return s.client.Quit()
}

// Close closes the connection. It is safe to call after Quit.
func (s *netSession) Close() error {
	err := s.client.Close()
	if err != nil && isClosedConn(err) {
		return nil
	}
	return err
}
