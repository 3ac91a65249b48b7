// Package logging builds the process logger.
//
// Diagnostics go to stderr; stdout belongs to the emulated console and the
// run summary.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelOff is above every level slog emits.
const LevelOff = slog.LevelError + 4

// Options selects the handler.
type Options struct {
	Level  string // debug, info, warn, error or off
	Format string // text or json
	Debug  bool   // forces debug level
}

// New returns a logger writing to w. A nil w means stderr.
func New(w io.Writer, o Options) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	if o.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(o.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", o.Format)
	}
}

// ParseLevel converts a level name. The empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off", "none":
		return LevelOff, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	l, _ := New(io.Discard, Options{Level: "off"})
	return l
}
