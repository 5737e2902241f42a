package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"starfocus/internal/config"
)

// New returns a slog.Logger writing to stderr with the provided level string
// (debug, info, warn, error). format may be "json" or "text".
func New(level string, format string) *slog.Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup builds the logger described by cfg and installs it as the default.
func Setup(cfg *config.Config) *slog.Logger {
	logger := New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog.Level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
