package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shineum/emailer-lite/internal/config"
	"github.com/shineum/emailer-lite/internal/email"
	"github.com/shineum/emailer-lite/internal/logging"
	"github.com/shineum/emailer-lite/internal/mailer"
)

// defaultDotenvPath is read when no --config-file is given.
const defaultDotenvPath = ".env"

var errUnsupportedFormat = errors.New("Unsupported configuration file format")

// app carries the process dependencies so that tests can replace them.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	fs        afero.Fs
}

type options struct {
	to           string
	cc           string
	bcc          string
	subject      string
	body         string
	html         bool
	attachments  []string
	templateFile string
	vars         []string

	configFile    string
	runtimeConfig string
	envPrefix     string
	iniSection    string
	provider      string
	dryRun        bool
	logLevel      string
}

// run executes the command and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "send-email",
		Short:         "Send an email through SMTP, AWS SES or Microsoft Graph",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.send(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.to, "to", "", "recipient addresses, comma separated")
	f.StringVar(&opts.subject, "subject", "", "message subject")
	f.StringVar(&opts.body, "body", "", "message body")
	f.BoolVar(&opts.html, "html", false, "send the body as HTML")
	f.StringVar(&opts.cc, "cc", "", "CC addresses, comma separated")
	f.StringVar(&opts.bcc, "bcc", "", "BCC addresses, comma separated")
	f.StringArrayVar(&opts.attachments, "attachment", nil, "file to attach (repeatable)")
	f.StringVar(&opts.templateFile, "template-file", "", "read the body from a template with {key} placeholders")
	f.StringArrayVar(&opts.vars, "var", nil, "template variable as key=value (repeatable)")
	f.StringVar(&opts.configFile, "config-file", "", "credentials file (.json, .ini, .env, .yaml or .yml)")
	f.StringVar(&opts.runtimeConfig, "runtime-config", "", "YAML file with provider, TLS and logging options")
	f.StringVar(&opts.envPrefix, "env-prefix", config.DefaultEnvPrefix, "prefix of the credential environment variables")
	f.StringVar(&opts.iniSection, "ini-section", config.DefaultINISection, "section of the INI config file")
	f.StringVar(&opts.provider, "provider", "", "delivery provider: smtp, ses, msgraph or stdout")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the message instead of sending it")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func (a *app) send(ctx context.Context, opts *options) error {
	loader := &config.Loader{LookupEnv: a.lookupEnv, Fs: a.fs}

	rt, err := a.loadRuntime(loader, opts)
	if err != nil {
		return err
	}
	logger := logging.Setup(rt.Logging.Level, rt.Logging.Format, a.stderr)

	resolveOpts, err := a.resolveOptions(opts)
	if err != nil {
		return err
	}
	settings, err := loader.Resolve(resolveOpts).Settings()
	if err != nil {
		return fmt.Errorf("%w\nSet %sADDRESS and %sPASSWORD, or pass --config-file", err, resolveOpts.EnvPrefix, resolveOpts.EnvPrefix)
	}

	body, err := a.messageBody(opts)
	if err != nil {
		return err
	}

	for _, path := range opts.attachments {
		if info, err := a.fs.Stat(path); err != nil || info.IsDir() {
			return fmt.Errorf("Attachment file not found: %s", path)
		}
	}

	prov, err := a.selectProvider(ctx, rt, logger)
	if err != nil {
		return err
	}

	dispatcherOpts := []mailer.Option{
		mailer.WithFs(a.fs),
		mailer.WithLogger(logger),
		mailer.WithTimeout(rt.SMTP.Timeout),
		mailer.WithLocalName(rt.SMTP.LocalName),
	}
	if prov != nil {
		dispatcherOpts = append(dispatcherOpts, mailer.WithProvider(prov))
	} else {
		tlsConfig, err := a.clientTLSConfig(rt)
		if err != nil {
			return err
		}
		dispatcherOpts = append(dispatcherOpts, mailer.WithTLSConfig(tlsConfig))
	}

	d, err := mailer.New(settings, dispatcherOpts...)
	if err != nil {
		return err
	}

	msg := email.Message{
		To:          email.SplitAddresses(opts.to),
		Cc:          email.SplitAddresses(opts.cc),
		Bcc:         email.SplitAddresses(opts.bcc),
		Subject:     opts.subject,
		Body:        body,
		HTML:        opts.html,
		Attachments: opts.attachments,
	}

	logger.Debug("sending email",
		"provider", d.Provider().Name(),
		"server", settings.Addr(),
		"implicit_tls", d.ImplicitTLS(),
	)
	if err := d.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	rcpts := len(msg.To) + len(msg.Cc) + len(msg.Bcc)
	if opts.dryRun {
		fmt.Fprintf(a.stdout, "Dry run: email to %d recipient(s) not sent\n", rcpts)
		return nil
	}
	fmt.Fprintf(a.stdout, "Email sent successfully to %d recipient(s)\n", rcpts)
	return nil
}

// loadRuntime reads the runtime options from --runtime-config or the
// environment, then applies the command-line overrides.
func (a *app) loadRuntime(loader *config.Loader, opts *options) (*config.Runtime, error) {
	var (
		rt  *config.Runtime
		err error
	)
	if opts.runtimeConfig != "" {
		rt, err = loader.LoadRuntimeFromFile(opts.runtimeConfig)
	} else {
		rt, err = config.LoadRuntime(a.lookupEnv)
	}
	if err != nil {
		return nil, err
	}

	if opts.provider != "" {
		rt.Provider = strings.ToLower(opts.provider)
	}
	if opts.dryRun {
		rt.Provider = config.ProviderStdout
	}
	if opts.logLevel != "" {
		rt.Logging.Level = opts.logLevel
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// resolveOptions maps --config-file to a source by its extension. Without
// one, ./.env is used when present.
func (a *app) resolveOptions(opts *options) (config.ResolveOptions, error) {
	ro := config.ResolveOptions{
		EnvPrefix:  opts.envPrefix,
		INISection: opts.iniSection,
	}
	if ro.EnvPrefix == "" {
		ro.EnvPrefix = config.DefaultEnvPrefix
	}

	if opts.configFile == "" {
		if info, err := a.fs.Stat(defaultDotenvPath); err == nil && !info.IsDir() {
			ro.DotenvPath = defaultDotenvPath
		}
		return ro, nil
	}

	switch strings.ToLower(filepath.Ext(opts.configFile)) {
	case ".json":
		ro.JSONPath = opts.configFile
	case ".ini":
		ro.INIPath = opts.configFile
	case ".env":
		ro.DotenvPath = opts.configFile
	case ".yaml", ".yml":
		ro.YAMLPath = opts.configFile
	default:
		if filepath.Base(opts.configFile) == defaultDotenvPath {
			ro.DotenvPath = opts.configFile
			break
		}
		return config.ResolveOptions{}, fmt.Errorf("%w: %s", errUnsupportedFormat, opts.configFile)
	}
	return ro, nil
}

// messageBody returns --body, or the rendered --template-file.
func (a *app) messageBody(opts *options) (string, error) {
	if opts.templateFile == "" {
		if opts.body == "" {
			return "", errors.New("required flag \"body\" not set")
		}
		if len(opts.vars) > 0 {
			vars, err := parseVars(opts.vars)
			if err != nil {
				return "", err
			}
			return email.Render(opts.body, vars), nil
		}
		return opts.body, nil
	}

	data, err := afero.ReadFile(a.fs, opts.templateFile)
	if err != nil {
		return "", fmt.Errorf("failed to read template file: %w", err)
	}
	vars, err := parseVars(opts.vars)
	if err != nil {
		return "", err
	}
	return email.Render(string(data), vars), nil
}

// parseVars parses key=value pairs. The value may contain '='.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
