// Package logging builds the process logger: human-readable text on stderr,
// or JSON lines in a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error; empty means info.
	Level string
	// File, if set, receives JSON logs instead of Stderr.
	File string
	// MaxSizeMB is the rotation threshold of File.
	MaxSizeMB int
	// MaxFiles is the number of rotated backups of File kept.
	MaxFiles int
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// ParseLevel parses a level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// New returns a logger configured by opts. The returned closer releases the
// log file, if any, and must be called once the logger is no longer used.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.File == "" {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		return slog.New(slog.NewTextHandler(stderr, handlerOpts)), io.NopCloser(nil), nil
	}

	w, err := NewRotatingFileWriter(opts.File, opts.MaxSizeMB, opts.MaxFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts)), w, nil
}
