package smtptest

import (
	"encoding/base64"
	"errors"
	"strings"
)

var (
	errBadEncoding = errors.New("invalid base64 encoding")
	errBadFormat   = errors.New("invalid AUTH PLAIN format")
	errBadCreds    = errors.New("authentication failed")
)

// authenticator checks AUTH credentials against the configured pair.
type authenticator struct {
	username string
	password string
}

func newAuthenticator(username, password string) *authenticator {
	return &authenticator{username: username, password: password}
}

// enabled returns true if authentication credentials are configured.
func (a *authenticator) enabled() bool {
	return a.username != "" && a.password != ""
}

// verifyPlain decodes and verifies an AUTH PLAIN response
// (base64 of authzid\0authcid\0password) and returns the identity.
func (a *authenticator) verifyPlain(encoded string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errBadEncoding
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return "", errBadFormat
	}

	user, pass := parts[1], parts[2]
	if user != a.username || pass != a.password {
		return "", errBadCreds
	}
	return user, nil
}

// verifyLogin verifies base64 encoded AUTH LOGIN credentials.
func (a *authenticator) verifyLogin(encodedUser, encodedPass string) (string, error) {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return "", errBadEncoding
	}
	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return "", errBadEncoding
	}

	if string(user) != a.username || string(pass) != a.password {
		return "", errBadCreds
	}
	return string(user), nil
}
