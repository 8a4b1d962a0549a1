// Package logging hands out per-component logrus entries that share one
// configured logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Options configures the shared logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // "text" or "json"
	Output io.Writer
}

var (
	base      = newBase()
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(textFormatter(os.Stderr))
	return l
}

// Configure applies opts to the shared logger. LIVEDOC_LOG_LEVEL overrides
// opts.Level. Entries handed out before the call pick up the change.
func Configure(opts Options) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	levelStr := opts.Level
	if env := os.Getenv("LIVEDOC_LOG_LEVEL"); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(textFormatter(out))
	}
}

// NewLogger returns the entry for component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if entry, ok := loggers[component]; ok {
		return entry
	}
	entry := base.WithField("component", component)
	loggers[component] = entry
	return entry
}

func textFormatter(out io.Writer) logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: !isTerminal(out),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
