// Package telemetry sets up structured logging, Prometheus metrics and
// OpenTelemetry tracing for hydrosim runs.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel reads HYDROSIM_LOG_LEVEL (DEBUG, INFO, WARN, ERROR). Default INFO.
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("HYDROSIM_LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the process logger writing to w.
//
// HYDROSIM_LOG_FORMAT selects the handler:
//   - "text" (default) for terminals
//   - "json" for machine consumption
func SetupLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: LogLevel()}

	var handler slog.Handler
	if os.Getenv("HYDROSIM_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

type ctxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithUnit returns a logger tagged with the unit name.
func WithUnit(logger *slog.Logger, unit string) *slog.Logger {
	return logger.With("unit", unit)
}

// WithRunID returns a logger tagged with the run id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}
