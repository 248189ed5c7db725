// Package logger builds the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// New returns a slog.Logger configured for the given environment.
// Production emits JSON for log aggregation; everything else gets
// human-readable text with debug output enabled.
func New(env string) *slog.Logger {
	var handler slog.Handler
	switch env {
	case "production", "staging":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}
