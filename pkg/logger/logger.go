package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultMaxSizeMB is the size at which a component log file rotates.
	DefaultMaxSizeMB = 5
	// DefaultMaxBackups is the number of rotated files kept per component.
	DefaultMaxBackups = 3
)

// Options configures a component logger.
type Options struct {
	Level      slog.Level
	Console    io.Writer // defaults to os.Stderr; set to io.Discard to silence
	Dir        string    // rotating file output is disabled when empty
	Component  string    // file name stem, e.g. "ingest" -> ingest.log
	MaxSizeMB  int
	MaxBackups int
	// Wrap, when set, decorates the combined handler, e.g. to persist errors.
	Wrap func(slog.Handler) slog.Handler
}

// NewDefaultLogger creates a console logger with color support.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return NewLogger(os.Stderr, level)
}

// NewLogger creates a new logger with color support using a custom writer
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// New builds a logger that echoes to the console and, when Dir is set, to a
// size-rotated file per component. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{
		NewColorHandler(console, &slog.HandlerOptions{Level: opts.Level}),
	}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		file := newRotatingFile(opts)
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: opts.Level}))
		closer = file
	}

	var h slog.Handler = NewTeeHandler(handlers...)
	if opts.Wrap != nil {
		h = opts.Wrap(h)
	}
	l := slog.New(h)
	if opts.Component != "" {
		l = l.With("component", opts.Component)
	}
	return l, closer
}

func newRotatingFile(opts Options) *lumberjack.Logger {
	name := opts.Component
	if name == "" {
		name = "servicegraph"
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}
	backups := opts.MaxBackups
	if backups <= 0 {
		backups = DefaultMaxBackups
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, name+".log"),
		MaxSize:    maxSize,
		MaxBackups: backups,
	}
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// TeeHandler fans each record out to several handlers.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler returns a handler writing to all of hs.
func NewTeeHandler(hs ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: hs}
}

// Enabled implements slog.Handler
func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler
func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: hs}
}

// WithGroup implements slog.Handler
func (t *TeeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: hs}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
