// Package observability provides the pipeline's structured logging and
// metrics sink: a log/slog-based Logger satisfying orchestrator.Logger, and
// a small set of Prometheus counters/histograms for the pipeline's stages.
package observability

import (
	"log/slog"
	"os"
	"strings"
)

// SlogLogger adapts *slog.Logger to the orchestrator.Logger port so the
// pipeline can log through one structured logger regardless of format.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger builds a Logger from level ("debug"|"info"|"warn"|"error")
// and format ("json"|"text"), writing to stdout.
func NewSlogLogger(level, format string) *SlogLogger {
	handler := newHandler(os.Stdout, level, format)
	return &SlogLogger{logger: slog.New(handler)}
}

// NewSlogLoggerFrom wraps an existing *slog.Logger, e.g. one already bound
// with submission_id/step_id attributes via With().
func NewSlogLoggerFrom(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

func newHandler(w *os.File, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
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

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// With returns a logger carrying additional key-value attributes attached to
// every subsequent log line (e.g. submission_id, step_id).
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...)}
}
