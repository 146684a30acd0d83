package smtptest

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout is the maximum time a session can remain idle before being closed.
const idleTimeout = 10 * time.Second

// session represents a single SMTP client connection.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	state  int

	tlsActive bool
	authUser  string

	// Current transaction
	mailFrom string
	rcptTo   []string
}

func newSession(s *Server, conn net.Conn) *session {
	_, isTLS := conn.(*tls.Conn)
	return &session{
		server:    s,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		state:     stateConnected,
		tlsActive: isTLS,
	}
}

// handle processes commands until the client quits or disconnects.
func (s *session) handle() {
	defer func() { s.conn.Close() }()

	if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
		return
	}
	s.writeLine("220 %s ESMTP smtptest", s.server.opts.Hostname)

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			slog.Debug("failed to set connection deadline", "error", err)
			return
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				slog.Debug("connection read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if drop := s.server.opts.DropAfter; drop != "" && strings.EqualFold(drop, cmd) {
			return
		}
		if done := s.handleCommand(cmd, arg); done {
			return
		}
	}
}

// handleCommand processes a single SMTP command and returns true if the session should end.
func (s *session) handleCommand(cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		return s.handleSTARTTLS()
	case "AUTH":
		s.handleAUTH(arg)
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		return s.handleDATA()
	case "RSET":
		s.resetTransaction()
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

func (s *session) starttlsAvailable() bool {
	return !s.tlsActive && !s.server.opts.DisableSTARTTLS
}

func (s *session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.state = stateGreeted
	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", s.server.opts.Hostname, arg)
		return
	}

	s.writeLine("250-%s Hello %s", s.server.opts.Hostname, arg)
	if s.starttlsAvailable() {
		s.writeLine("250-STARTTLS")
	}
	if s.server.auth.enabled() {
		s.writeLine("250-AUTH PLAIN LOGIN")
	}
	s.writeLine("250 OK")
}

// handleSTARTTLS upgrades the connection to TLS. It returns true if the
// handshake failed and the session must end.
func (s *session) handleSTARTTLS() bool {
	if !s.starttlsAvailable() {
		s.writeLine("454 TLS not available")
		return false
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.server.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Debug("TLS handshake failed", "error", err)
		return true
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.state = stateConnected
	s.authUser = ""
	s.resetTransaction()
	return false
}

func (s *session) handleAUTH(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !s.server.auth.enabled() {
		s.writeLine("503 AUTH not available")
		return
	}

	parts := strings.SplitN(arg, " ", 2)
	switch strings.ToUpper(parts[0]) {
	case "PLAIN":
		s.handleAuthPlain(parts)
	case "LOGIN":
		s.handleAuthLogin()
	default:
		s.writeLine("504 Unrecognized authentication type")
	}
}

func (s *session) handleAuthPlain(parts []string) {
	var encoded string
	if len(parts) > 1 && parts[1] != "" {
		encoded = parts[1]
	} else {
		s.writeLine("334 ")
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		encoded = strings.TrimRight(line, "\r\n")
	}

	if encoded == "*" {
		s.writeLine("501 Authentication cancelled")
		return
	}

	user, err := s.server.auth.verifyPlain(encoded)
	if err != nil {
		s.writeLine("535 5.7.8 Authentication credentials invalid")
		return
	}
	s.authSucceeded(user)
}

func (s *session) handleAuthLogin() {
	// base64 "Username:"
	s.writeLine("334 VXNlcm5hbWU6")
	userLine, err := s.reader.ReadString('\n')
	if err != nil {
		return
	}
	encodedUser := strings.TrimRight(userLine, "\r\n")
	if encodedUser == "*" {
		s.writeLine("501 Authentication cancelled")
		return
	}

	// base64 "Password:"
	s.writeLine("334 UGFzc3dvcmQ6")
	passLine, err := s.reader.ReadString('\n')
	if err != nil {
		return
	}
	encodedPass := strings.TrimRight(passLine, "\r\n")
	if encodedPass == "*" {
		s.writeLine("501 Authentication cancelled")
		return
	}

	user, err := s.server.auth.verifyLogin(encodedUser, encodedPass)
	if err != nil {
		s.writeLine("535 5.7.8 Authentication credentials invalid")
		return
	}
	s.authSucceeded(user)
}

func (s *session) authSucceeded(user string) {
	s.authUser = user
	s.state = stateAuthOK
	s.writeLine("235 2.7.0 Authentication successful")
}

func (s *session) handleMAIL(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if s.server.auth.enabled() && s.authUser == "" {
		s.writeLine("530 5.7.0 Authentication required")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}
	addr := extractAddress(arg[5:])
	if addr == "" {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

func (s *session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}
	addr := extractAddress(arg[3:])
	if addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}
	if slices.Contains(s.server.opts.RejectRecipients, addr) {
		s.writeLine("550 5.1.1 No such user")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

// handleDATA reads the message up to the lone-dot terminator and records
// it. It returns true if the connection broke mid-message.
func (s *session) handleDATA() bool {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return false
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	var data bytes.Buffer
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			slog.Debug("error reading DATA", "error", err)
			return true
		}

		if strings.TrimRight(line, "\r\n") == "." {
			break
		}
		// Undo dot-stuffing
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		data.WriteString(line)
	}

	s.server.record(Delivery{
		From:       s.mailFrom,
		Recipients: s.rcptTo,
		Data:       data.Bytes(),
		TLS:        s.tlsActive,
		AuthUser:   s.authUser,
	})

	s.writeLine("250 OK message accepted")
	s.resetTransaction()
	return false
}

// resetTransaction clears the current mail transaction without affecting
// the greeting or authentication.
func (s *session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil

	switch {
	case s.authUser != "":
		s.state = stateAuthOK
	case s.state >= stateGreeted:
		s.state = stateGreeted
	}
}

// writeLine writes a formatted line to the client, followed by \r\n.
func (s *session) writeLine(format string, args ...any) {
	if _, err := s.writer.WriteString(fmt.Sprintf(format, args...) + "\r\n"); err != nil {
		slog.Debug("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Debug("failed to flush to client", "error", err)
	}
}

// parseCommand splits an SMTP command line into the command verb and its argument.
func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

// extractAddress extracts an email address from an SMTP parameter,
// handling both angle-bracket and bare formats.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}

	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
