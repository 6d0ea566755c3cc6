// Package logger builds the slog loggers of a run: a text console logger and
// a JSON "raw" log file inside the logs folder.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// RawLogName is the log file written into every logs folder.
const RawLogName = "raw"

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// New returns a text logger for console output.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard drops every record.
func Discard() *slog.Logger {
	var level slog.LevelVar
	level.Set(slog.Level(100))
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: &level}))
}

// WithFile tees console to a JSON log at <folder>/raw. The returned closer
// closes the file.
func WithFile(console *slog.Logger, folder string, level slog.Level) (*slog.Logger, io.Closer, error) {
	err := os.MkdirAll(folder, os.ModePerm)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(folder, RawLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	var file = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(multiHandler{console.Handler(), file}), f, nil
}

// multiHandler fans records out to every handler enabled for the level.
type multiHandler []slog.Handler

func (h multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var result = make(multiHandler, len(h))
	for i, handler := range h {
		result[i] = handler.WithAttrs(attrs)
	}
	return result
}

func (h multiHandler) WithGroup(name string) slog.Handler {
	var result = make(multiHandler, len(h))
	for i, handler := range h {
		result[i] = handler.WithGroup(name)
	}
	return result
}
