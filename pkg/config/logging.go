package config

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the service logger from logging settings.
// JSON_LOGS selects the JSON handler for log aggregation; the text handler
// is the local-development default. The returned logger carries a `service`
// attribute on every record.
func (l LoggingSettings) NewLogger(service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.slogLevel()}

	var handler slog.Handler
	if l.JSONLogs {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", service)
}

func (l LoggingSettings) slogLevel() slog.Level {
	switch strings.ToUpper(l.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
