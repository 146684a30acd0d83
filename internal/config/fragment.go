// Package config resolves sender credentials from layered sources
// (INI, dotenv, YAML, JSON and the environment) and loads the runtime
// options of the send-email command.
package config

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Fragment keys, as used by every file source.
const (
	KeyEmail      = "email"
	KeyPassword   = "password"
	KeySMTPServer = "smtp_server"
	KeySMTPPort   = "smtp_port"
)

// Fragment is a partial settings record produced by a single source. A zero
// field is absent.
type Fragment struct {
	Email      string
	Password   string
	SMTPServer string
	SMTPPort   int
}

// Merge returns f with every field present in other overwriting its own.
func (f Fragment) Merge(other Fragment) Fragment {
	if other.Email != "" {
		f.Email = other.Email
	}
	if other.Password != "" {
		f.Password = other.Password
	}
	if other.SMTPServer != "" {
		f.SMTPServer = other.SMTPServer
	}
	if other.SMTPPort != 0 {
		f.SMTPPort = other.SMTPPort
	}
	return f
}

// IsEmpty reports whether no field is present.
func (f Fragment) IsEmpty() bool {
	return f == Fragment{}
}

// fromMap builds a Fragment from decoded key/value pairs. Unknown keys are
// ignored and a smtp_port that is not an integer is dropped.
func fromMap(values map[string]any) Fragment {
	var f Fragment
	for key, raw := range values {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case KeyEmail:
			f.Email = stringValue(raw)
		case KeyPassword:
			f.Password = stringValue(raw)
		case KeySMTPServer:
			f.SMTPServer = stringValue(raw)
		case KeySMTPPort:
			f.SMTPPort = portValue(raw)
		}
	}
	return f
}

func stringValue(raw any) string {
	s, err := cast.ToStringE(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// portValue reads a port as a base-10 integer. Strings must be plain decimal
// digits; decoded numbers must be whole.
func portValue(raw any) int {
	var (
		port int
		err  error
	)
	switch v := raw.(type) {
	case string:
		port, err = strconv.Atoi(strings.TrimSpace(v))
	case float64:
		if v != float64(int(v)) {
			return 0
		}
		port = int(v)
	default:
		port, err = cast.ToIntE(raw)
	}
	if err != nil || port <= 0 {
		return 0
	}
	return port
}
