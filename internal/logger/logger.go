package logger

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps LOG_LEVEL names to slog levels; unknown names mean INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
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

// Setup installs a text handler on w as the default logger.
func Setup(level string, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
