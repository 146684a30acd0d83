package smtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"syscall"

	"github.com/shineum/emailer-lite/internal/email"
)

// Session stages, used in error messages.
const (
	stageConnect  = "connect"
	stageHello    = "EHLO"
	stageStartTLS = "STARTTLS"
	stageAuth     = "AUTH"
	stageSend     = "send"
)

const (
	hintPortMode    = "try port 465 with SSL or 587 with STARTTLS"
	hintCredentials = "verify the email address and password, or use an app-specific password"
)

// authFailureCodes are the reply codes that mean the credentials were
// refused.
var authFailureCodes = map[int]bool{
	530: true,
	534: true,
	535: true,
}

// classify maps a session failure to one of the email error sentinels.
func classify(stage string, err error) error {
	var protoErr *textproto.Error
	if stage == stageAuth && errors.As(err, &protoErr) && authFailureCodes[protoErr.Code] {
		return fmt.Errorf("%w (%s): %w", email.ErrAuthentication, hintCredentials, err)
	}

	if isClosedConn(err) {
		return fmt.Errorf("%w during %s (%s): %w", email.ErrConnectionClosed, stage, hintPortMode, err)
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return fmt.Errorf("%w: %s failed (%s): %w", email.ErrTransport, stage, hintPortMode, err)
	}

	return fmt.Errorf("%w: %s failed: %w", email.ErrTransport, stage, err)
}

// isClosedConn reports whether err means the peer or the local side closed
// the connection.
func isClosedConn(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}
