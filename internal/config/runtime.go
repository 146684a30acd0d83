package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by PROVIDER.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "msgraph"
	ProviderStdout = "stdout"
)

// defaultSMTPTimeout bounds a whole SMTP session when the caller's context
// has no deadline.
const defaultSMTPTimeout = 30 * time.Second

// ErrInvalidRuntime is returned when a runtime option has an unsupported
// value.
var ErrInvalidRuntime = errors.New("invalid runtime configuration")

// Runtime holds the delivery and logging options of the send-email command.
// Sender credentials are resolved separately, see Loader.Resolve.
type Runtime struct {
	Provider string        `yaml:"provider" validate:"oneof=smtp ses msgraph stdout"`
	SMTP     SMTPOptions   `yaml:"smtp"`
	TLS      TLSOptions    `yaml:"tls"`
	SES      SESConfig     `yaml:"ses"`
	Graph    GraphConfig   `yaml:"graph"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPOptions holds SMTP client options that are not credentials.
type SMTPOptions struct {
	Timeout   time.Duration `yaml:"timeout"`
	LocalName string        `yaml:"local_name"`
}

// TLSOptions controls verification of the SMTP server certificate.
type TLSOptions struct {
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// SESConfig holds AWS SES configuration. Static keys are optional; without
// them the default AWS credential chain is used.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API client credentials.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// LoadRuntime loads runtime options from environment variables on top of the
// defaults. A nil lookup uses the process environment.
func LoadRuntime(lookup func(string) (string, bool)) (*Runtime, error) {
	cfg := &Runtime{}
	cfg.applyDefaults()
	cfg.applyEnvVars(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRuntimeFromFile loads a YAML file as the base layer, then overrides it
// with environment variables. A missing file is an error.
func (l *Loader) LoadRuntimeFromFile(path string) (*Runtime, error) {
	data, ok := l.readFile(path)
	if !ok {
		return nil, fmt.Errorf("failed to read runtime config file %s", path)
	}

	cfg := &Runtime{}
	cfg.applyDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config file: %w", err)
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	// Environment variables always override YAML values
	cfg.applyEnvVars(l.lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated options.
func (c *Runtime) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: unsupported %s %q", ErrInvalidRuntime, strings.ToLower(fe.StructField()), fe.Value())
		}
		return fmt.Errorf("%w: %w", ErrInvalidRuntime, err)
	}
	return nil
}

// SESConfigured returns true if an SES region is set.
func (c *Runtime) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all three Graph API credentials are set.
func (c *Runtime) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Runtime) applyDefaults() {
	c.Provider = ProviderSMTP
	c.SMTP.Timeout = defaultSMTPTimeout
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Runtime) applyEnvVars(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	if v := get("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := get("SMTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.SMTP.Timeout = d
		}
	}
	if v := get("SMTP_LOCAL_NAME"); v != "" {
		c.SMTP.LocalName = v
	}

	if v := get("TLS_CA_FILE"); v != "" {
		c.TLS.CAFile = v
	}
	if v := get("TLS_INSECURE_SKIP_VERIFY"); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			c.TLS.InsecureSkipVerify = b
		}
	}

	if v := get("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := get("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := get("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := get("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := get("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := get("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}

	if v := get("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := get("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}
