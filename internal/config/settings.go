package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when a resolved fragment leaves the server unset.
const (
	DefaultSMTPServer = "smtp.gmail.com"
	DefaultSMTPPort   = 587
)

// ErrIncompleteConfig is returned when required credentials are missing after
// all sources have been merged.
var ErrIncompleteConfig = errors.New("configuration incomplete")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Settings is the complete sender configuration used by the dispatcher.
type Settings struct {
	Email      string `validate:"required"`
	Password   string `validate:"required"`
	SMTPServer string `validate:"required"`
	SMTPPort   int    `validate:"min=1,max=65535"`
}

// fieldKeys maps struct field names to the keys users write in config files.
var fieldKeys = map[string]string{
	"Email":      KeyEmail,
	"Password":   KeyPassword,
	"SMTPServer": KeySMTPServer,
	"SMTPPort":   KeySMTPPort,
}

// Validate checks that the credentials are present and the port is usable.
// Failures wrap ErrIncompleteConfig and name the offending keys.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrIncompleteConfig, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key, ok := fieldKeys[fe.StructField()]
		if !ok {
			key = fe.StructField()
		}
		fields = append(fields, key)
	}
	return fmt.Errorf("%w: missing or invalid %s", ErrIncompleteConfig, strings.Join(fields, ", "))
}

// Settings applies the server defaults to f and validates the result.
func (f Fragment) Settings() (Settings, error) {
	s := Settings{
		Email:      f.Email,
		Password:   f.Password,
		SMTPServer: f.SMTPServer,
		SMTPPort:   f.SMTPPort,
	}
	if s.SMTPServer == "" {
		s.SMTPServer = DefaultSMTPServer
	}
	if s.SMTPPort == 0 {
		s.SMTPPort = DefaultSMTPPort
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Addr returns the host:port of the SMTP server.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.SMTPServer, strconv.Itoa(s.SMTPPort))
}
