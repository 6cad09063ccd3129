package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a production-friendly JSON logger writing to stdout.
// LOG_FORMAT=console switches to human-readable text output and
// LOG_LEVEL=debug|info|warn|error adjusts verbosity (info by default).
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format := os.Getenv("LOG_FORMAT"); format == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
