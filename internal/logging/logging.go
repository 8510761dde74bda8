// Package logging builds the process logger: a console handler (JSON or
// colourised text via tint) optionally teed into a size-capped log file.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Console formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures [New].
type Options struct {
	// Level is one of debug, info, warn or error. Empty means info.
	Level string

	// Format is FormatJSON (default) or FormatText.
	Format string

	// Output receives console logs. Nil means os.Stderr.
	Output io.Writer

	// File, when set, additionally receives every record as JSON.
	File *CappedFile
}

// ParseLevel converts a level name into a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger from opts.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case FormatText:
		console = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(out),
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File == nil {
		return slog.New(console), nil
	}
	file := slog.NewJSONHandler(opts.File, &slog.HandlerOptions{Level: level})
	return slog.New(teeHandler{console, file}), nil
}

// isTerminal reports whether w is a terminal that understands colour codes.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// teeHandler sends every record to all of its handlers.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
