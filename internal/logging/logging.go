package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"FilingMonitor/internal/config"
)

const logFileName = "pipeline.log"

// New creates a console slog.Logger and, when a log directory is configured,
// tees JSON records into a size-rotated file.
func New(cfg config.LoggingConfig) *slog.Logger {
	level := levelFromString(cfg.Level)
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})

	if strings.TrimSpace(cfg.Dir) == "" {
		return slog.New(console)
	}

	file := NewRotatingWriter(cfg)
	if file == nil {
		return slog.New(console)
	}
	jsonHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(fanout{console, jsonHandler})
}

// NewRotatingWriter returns the rotating file sink or nil when the directory cannot be created.
func NewRotatingWriter(cfg config.LoggingConfig) io.WriteCloser {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	backups := cfg.MaxBackups
	if backups <= 0 {
		backups = 5
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, logFileName),
		MaxSize:    maxSize,
		MaxBackups: backups,
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// fanout dispatches every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
