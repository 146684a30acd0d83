package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	iniSource    = "[email]\nemail = ini@example.com\npassword = ini-pass\nsmtp_server = ini.example.com\nsmtp_port = 25\n"
	dotenvSource = "EMAIL_ADDRESS=dotenv@example.com\nEMAIL_PASSWORD=dotenv-pass\n"
	yamlSource   = "email: yaml@example.com\n"
	jsonSource   = `{"email": "json@example.com", "smtp_port": "587"}`
)

func TestResolve_Priority(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"/cfg/config.ini":  iniSource,
		"/cfg/.env":        dotenvSource,
		"/cfg/config.yaml": yamlSource,
		"/cfg/config.json": jsonSource,
	}
	all := ResolveOptions{
		INIPath:    "/cfg/config.ini",
		DotenvPath: "/cfg/.env",
		YAMLPath:   "/cfg/config.yaml",
		JSONPath:   "/cfg/config.json",
	}

	tests := []struct {
		name      string
		env       map[string]string
		opts      ResolveOptions
		wantEmail string
	}{
		{
			name:      "environment wins over everything",
			env:       map[string]string{"EMAIL_ADDRESS": "env@example.com"},
			opts:      all,
			wantEmail: "env@example.com",
		},
		{
			name:      "JSON wins without environment",
			opts:      all,
			wantEmail: "json@example.com",
		},
		{
			name:      "YAML wins over dotenv",
			opts:      ResolveOptions{INIPath: "/cfg/config.ini", DotenvPath: "/cfg/.env", YAMLPath: "/cfg/config.yaml"},
			wantEmail: "yaml@example.com",
		},
		{
			name:      "dotenv wins over INI",
			opts:      ResolveOptions{INIPath: "/cfg/config.ini", DotenvPath: "/cfg/.env"},
			wantEmail: "dotenv@example.com",
		},
		{
			name:      "INI alone",
			opts:      ResolveOptions{INIPath: "/cfg/config.ini"},
			wantEmail: "ini@example.com",
		},
		{
			name:      "empty environment variable does not override",
			env:       map[string]string{"EMAIL_ADDRESS": ""},
			opts:      all,
			wantEmail: "json@example.com",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := newTestLoader(t, tt.env, files)
			assert.Equal(t, tt.wantEmail, l.Resolve(tt.opts).Email)
		})
	}
}

func TestResolve_MergesKeyByKey(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, map[string]string{"EMAIL_SMTP_SERVER": "env.example.com"}, map[string]string{
		"/cfg/config.ini":  iniSource,
		"/cfg/.env":        dotenvSource,
		"/cfg/config.json": jsonSource,
	})

	got := l.Resolve(ResolveOptions{
		INIPath:    "/cfg/config.ini",
		DotenvPath: "/cfg/.env",
		JSONPath:   "/cfg/config.json",
	})

	assert.Equal(t, Fragment{
		Email:      "json@example.com",
		Password:   "dotenv-pass",
		SMTPServer: "env.example.com",
		SMTPPort:   587,
	}, got)
}

func TestResolve_CustomPrefixAndSection(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, map[string]string{
		"WORK_PASSWORD": "env-pass",
		"EMAIL_ADDRESS": "ignored@example.com",
	}, map[string]string{
		"/cfg/config.ini": "[smtp]\nemail = work@example.com\n",
		"/cfg/.env":       "WORK_SMTP_PORT=465\nEMAIL_SMTP_PORT=25\n",
	})

	got := l.Resolve(ResolveOptions{
		EnvPrefix:  "WORK_",
		INIPath:    "/cfg/config.ini",
		INISection: "smtp",
		DotenvPath: "/cfg/.env",
	})

	assert.Equal(t, Fragment{Email: "work@example.com", Password: "env-pass", SMTPPort: 465}, got)
}

func TestResolve_NoSources(t *testing.T) {
	t.Parallel()

	l := newTestLoader(t, nil, nil)
	assert.True(t, l.Resolve(ResolveOptions{JSONPath: "/missing.json"}).IsEmpty())
}

func TestFragmentMerge(t *testing.T) {
	t.Parallel()

	base := Fragment{Email: "a@example.com", Password: "p", SMTPServer: "s", SMTPPort: 25}

	assert.Equal(t, base, base.Merge(Fragment{}))
	assert.Equal(t,
		Fragment{Email: "b@example.com", Password: "p", SMTPServer: "s", SMTPPort: 465},
		base.Merge(Fragment{Email: "b@example.com", SMTPPort: 465}),
	)
}
