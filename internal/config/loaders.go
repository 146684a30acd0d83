package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/go-ini/ini"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Defaults for the source-specific options.
const (
	DefaultEnvPrefix  = "EMAIL_"
	DefaultINISection = "email"
)

// Loader reads fragments from the environment and the filesystem. Every
// loader method is total: unreadable or malformed sources yield an empty
// Fragment and are only logged at debug level.
type Loader struct {
	LookupEnv func(key string) (string, bool)
	Fs        afero.Fs
}

// NewLoader returns a Loader backed by the process environment and the OS
// filesystem.
func NewLoader() *Loader {
	return &Loader{
		LookupEnv: os.LookupEnv,
		Fs:        afero.NewOsFs(),
	}
}

func (l *Loader) lookup(key string) (string, bool) {
	if l.LookupEnv == nil {
		return os.LookupEnv(key)
	}
	return l.LookupEnv(key)
}

func (l *Loader) fs() afero.Fs {
	if l.Fs == nil {
		return afero.NewOsFs()
	}
	return l.Fs
}

// readFile returns the contents of path, or false if it cannot be read.
func (l *Loader) readFile(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	data, err := afero.ReadFile(l.fs(), path)
	if err != nil {
		slog.Debug("config source not readable", "path", path, "error", err)
		return nil, false
	}
	return data, true
}

// LoadFromEnvironment reads {prefix}ADDRESS, {prefix}PASSWORD,
// {prefix}SMTP_SERVER and {prefix}SMTP_PORT. Empty variables are absent.
func (l *Loader) LoadFromEnvironment(prefix string) Fragment {
	values := make(map[string]any)
	for suffix, key := range map[string]string{
		"ADDRESS":     KeyEmail,
		"PASSWORD":    KeyPassword,
		"SMTP_SERVER": KeySMTPServer,
		"SMTP_PORT":   KeySMTPPort,
	} {
		if v, ok := l.lookup(prefix + suffix); ok && v != "" {
			values[key] = v
		}
	}
	return fromMap(values)
}

// LoadFromJSON reads a JSON object with the keys email, password,
// smtp_server and smtp_port. smtp_port may be a number or a numeric string.
func (l *Loader) LoadFromJSON(path string) Fragment {
	data, ok := l.readFile(path)
	if !ok {
		return Fragment{}
	}

	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		slog.Debug("invalid JSON config", "path", path, "error", err)
		return Fragment{}
	}
	return fromMap(values)
}

// LoadFromYAML reads a YAML mapping with the same keys as the JSON source.
func (l *Loader) LoadFromYAML(path string) Fragment {
	data, ok := l.readFile(path)
	if !ok {
		return Fragment{}
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		slog.Debug("invalid YAML config", "path", path, "error", err)
		return Fragment{}
	}
	return fromMap(values)
}

// LoadFromINI reads the given section of an INI file. Key names are matched
// case-insensitively. Values are kept verbatim; '#' and ';' only start a
// comment at the beginning of a line.
func (l *Loader) LoadFromINI(path, section string) Fragment {
	data, ok := l.readFile(path)
	if !ok {
		return Fragment{}
	}
	if section == "" {
		section = DefaultINISection
	}

	file, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:     true,
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		slog.Debug("invalid INI config", "path", path, "error", err)
		return Fragment{}
	}
	sec, err := file.GetSection(section)
	if err != nil {
		slog.Debug("INI section not found", "path", path, "section", section)
		return Fragment{}
	}

	values := make(map[string]any)
	for k, v := range sec.KeysHash() {
		values[k] = v
	}
	return fromMap(values)
}

// LoadFromDotenv reads KEY=value or KEY:value lines. Blank lines and lines
// starting with # are skipped. Only keys carrying prefix are used; the prefix
// is stripped, the rest lower-cased, and "address" is read as "email".
func (l *Loader) LoadFromDotenv(path, prefix string) Fragment {
	data, ok := l.readFile(path)
	if !ok {
		return Fragment{}
	}

	values := make(map[string]any)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := parseDotenvLine(scanner.Text())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}

		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		if key == "address" {
			key = KeyEmail
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("failed reading dotenv config", "path", path, "error", err)
		return Fragment{}
	}
	return fromMap(values)
}

// parseDotenvLine splits a line on the first '=', or on the first ':' when
// there is no '='.
func parseDotenvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}

	sep := "="
	if !strings.Contains(line, sep) {
		sep = ":"
	}
	key, value, ok = strings.Cut(line, sep)
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}
