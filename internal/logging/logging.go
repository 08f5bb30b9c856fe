// Package logging builds the CLI's slog logger: a text handler on stderr
// fanned out, optionally, to a JSON handler appending to a log file. Both
// handlers share one LevelVar so the level can change at runtime.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// File, when set, receives JSON records in addition to Stderr.
	File string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Logger is a configured logger plus the handles needed to adjust and
// release it.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	file  *os.File
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := new(slog.LevelVar)
	lv, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level.Set(lv)

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
	}

	l := &Logger{Level: level}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	l.Logger = slog.New(slogmulti.Fanout(handlers...))
	return l, nil
}

// ParseLevel maps a level name to a slog.Level. Names are case-insensitive;
// "warning" is accepted for warn.
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
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
