// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

const masked = "***"

// DefaultMaskKeys are attribute keys whose values never reach the log output.
var DefaultMaskKeys = []string{
	"password",
	"secret",
	"token",
	"access_token",
	"client_secret",
	"secret_access_key",
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values are
// treated as info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. format is "json" or "text"; anything
// else falls back to JSON. Attributes named in DefaultMaskKeys are redacted.
func New(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(NewMaskHandler(handler, DefaultMaskKeys...))
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(level, format string, w io.Writer) *slog.Logger {
	logger := New(level, format, w)
	slog.SetDefault(logger)
	return logger
}

type maskHandler struct {
	handler  slog.Handler
	maskKeys map[string]struct{}
}

// NewMaskHandler wraps handler so that attributes whose key matches one of
// keys (case-insensitively) are logged as "***". Groups and map values are
// searched recursively.
func NewMaskHandler(handler slog.Handler, keys ...string) slog.Handler {
	maskKeys := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(strings.ToLower(key))
		if key == "" {
			continue
		}
		maskKeys[key] = struct{}{}
	}
	return &maskHandler{handler: handler, maskKeys: maskKeys}
}

func (h *maskHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *maskHandler) Handle(ctx context.Context, record slog.Record) error {
	if len(h.maskKeys) == 0 {
		return h.handler.Handle(ctx, record)
	}

	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(h.maskAttr(attr))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *maskHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		maskedAttrs = append(maskedAttrs, h.maskAttr(attr))
	}
	return &maskHandler{
		handler:  h.handler.WithAttrs(maskedAttrs),
		maskKeys: h.maskKeys,
	}
}

func (h *maskHandler) WithGroup(name string) slog.Handler {
	return &maskHandler{
		handler:  h.handler.WithGroup(name),
		maskKeys: h.maskKeys,
	}
}

func (h *maskHandler) isMasked(key string) bool {
	_, found := h.maskKeys[strings.ToLower(key)]
	return found
}

func (h *maskHandler) maskAttr(attr slog.Attr) slog.Attr {
	if h.isMasked(attr.Key) {
		return slog.String(attr.Key, masked)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		out := make([]slog.Attr, 0, len(group))
		for _, ga := range group {
			out = append(out, h.maskAttr(ga))
		}
		attr.Value = slog.GroupValue(out...)
	case slog.KindAny:
		switch v := attr.Value.Any().(type) {
		case map[string]any:
			attr.Value = slog.AnyValue(h.maskMap(v))
		case map[string]string:
			converted := make(map[string]any, len(v))
			for k, s := range v {
				converted[k] = s
			}
			attr.Value = slog.AnyValue(h.maskMap(converted))
		}
	}
	return attr
}

func (h *maskHandler) maskMap(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch {
		case h.isMasked(k):
			out[k] = masked
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = h.maskMap(nested)
				continue
			}
			out[k] = v
		}
	}
	return out
}
