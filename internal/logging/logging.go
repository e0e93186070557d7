// Package logging sets up the process logger: JSON records in a file created
// per process start, and human readable records on stderr.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FileTimeFormat names log files; it sorts chronologically.
const FileTimeFormat = "2006-01-02T15-04-05"

// New creates dir if needed and opens dir/<start time>.log. The returned
// closer releases the file.
func New(dir string, level slog.Level, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, time.Now().Format(FileTimeFormat)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	options := &slog.HandlerOptions{Level: level}
	logger := slog.New(tee{
		slog.NewJSONHandler(file, options),
		slog.NewTextHandler(stderr, options),
	})
	return logger, file, nil
}

// tee sends every record to all of its handlers.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make(tee, len(t))
	for i, h := range t {
		handlers[i] = h.WithAttrs(attrs)
	}
	return handlers
}

func (t tee) WithGroup(name string) slog.Handler {
	handlers := make(tee, len(t))
	for i, h := range t {
		handlers[i] = h.WithGroup(name)
	}
	return handlers
}
