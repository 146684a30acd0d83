package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentSettings_Defaults(t *testing.T) {
	t.Parallel()

	s, err := Fragment{Email: "me@example.com", Password: "secret"}.Settings()
	require.NoError(t, err)

	assert.Equal(t, Settings{
		Email:      "me@example.com",
		Password:   "secret",
		SMTPServer: "smtp.gmail.com",
		SMTPPort:   587,
	}, s)
	assert.Equal(t, "smtp.gmail.com:587", s.Addr())
}

func TestFragmentSettings_KeepsExplicitServer(t *testing.T) {
	t.Parallel()

	s, err := Fragment{
		Email:      "me@example.com",
		Password:   "secret",
		SMTPServer: "smtp.example.com",
		SMTPPort:   465,
	}.Settings()
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:465", s.Addr())
}

func TestFragmentSettings_Incomplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fragment  Fragment
		wantField string
	}{
		{name: "missing email", fragment: Fragment{Password: "secret"}, wantField: "email"},
		{name: "missing password", fragment: Fragment{Email: "me@example.com"}, wantField: "password"},
		{name: "port out of range", fragment: Fragment{Email: "me@example.com", Password: "secret", SMTPPort: 70000}, wantField: "smtp_port"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.fragment.Settings()
			require.ErrorIs(t, err, ErrIncompleteConfig)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestFragmentSettings_ListsAllMissingFields(t *testing.T) {
	t.Parallel()

	_, err := Fragment{}.Settings()
	require.ErrorIs(t, err, ErrIncompleteConfig)
	assert.Contains(t, err.Error(), "email, password")
}
