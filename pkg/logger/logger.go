// Package logger builds the *slog.Logger instances used across pulse.
//
// Three renderings are available: slog's text handler (default), slog's JSON
// handler for machine-readable log files, and the charmbracelet/log handler
// for colorized terminal output.
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	prefix  string
	writers []io.Writer
}

// New returns a logger configured by opts. JSON wins over pretty when both
// are set.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
	}
	for _, opt := range opts {
		opt(c)
	}

	w := c.writer()

	var h slog.Handler
	switch {
	case c.json:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	case c.pretty:
		h = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
			Prefix:          c.prefix,
		})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	}

	l := slog.New(h)
	if c.prefix != "" && !c.pretty {
		l = l.With("component", c.prefix)
	}
	return l
}

func (c *config) writer() io.Writer {
	switch len(c.writers) {
	case 0:
		return io.Discard
	case 1:
		return c.writers[0]
	default:
		return io.MultiWriter(c.writers...)
	}
}

// Nop returns a logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}
