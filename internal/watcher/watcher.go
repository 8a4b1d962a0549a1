// Package watcher turns filesystem notifications for a directory tree into a
// channel of debounced change events.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"livedoc/internal/logging"
)

// DefaultDebounce is the minimum interval between two accepted events for
// the same path.
const DefaultDebounce = 500 * time.Millisecond

// Event reports a modified file.
type Event struct {
	Path string
	Time time.Time
}

// Filter reports whether a path is of interest.
type Filter func(path string) bool

// ExtensionFilter accepts paths ending in one of exts. Comparison ignores
// case and a missing leading dot.
func ExtensionFilter(exts ...string) Filter {
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		want[ext] = struct{}{}
	}
	return func(path string) bool {
		_, ok := want[strings.ToLower(filepath.Ext(path))]
		return ok
	}
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Filters  []Filter
	// Clock returns the current time. Tests replace it.
	Clock func() time.Time
	// Buffer is the capacity of the events channel.
	Buffer int
}

// Watcher watches directory trees and emits one Event per accepted file
// modification.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	filters   []Filter
	clock     func() time.Time
	events    chan Event
	log       *logrus.Entry

	closeOnce sync.Once
}

// New creates a Watcher. Nothing is watched until AddRecursive is called.
func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fs:        fsw,
		debouncer: NewDebouncer(opts.Debounce),
		filters:   opts.Filters,
		clock:     opts.Clock,
		events:    make(chan Event, opts.Buffer),
		log:       logging.NewLogger("watcher"),
	}, nil
}

// Events returns the channel of accepted changes. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// AddRecursive watches root and every directory below it.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.WalkDir(filepath.Clean(root), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return err
		}
		w.log.WithField("path", path).Debug("watching directory")
		return nil
	})
}

// Run forwards filesystem notifications until ctx is cancelled or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if change, accepted := w.handle(ev); accepted {
				select {
				case w.events <- change:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("file watcher error")
		}
	}
}

// Close stops the underlying notifier. Run returns shortly after.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
	})
	return err
}

// handle decides whether ev becomes an Event. New directories are added to
// the watch set instead.
func (w *Watcher) handle(ev fsnotify.Event) (Event, bool) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return Event{}, false
	}

	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.AddRecursive(ev.Name); err != nil {
				w.log.WithError(err).WithField("path", ev.Name).Warn("watching new directory")
			}
		}
		return Event{}, false
	}

	for _, filter := range w.filters {
		if !filter(ev.Name) {
			return Event{}, false
		}
	}

	now := w.clock()
	if !w.debouncer.Allow(ev.Name, now) {
		w.log.WithField("path", ev.Name).Trace("debounced")
		return Event{}, false
	}
	return Event{Path: ev.Name, Time: now}, true
}

// Debouncer drops events for a path that arrive within the window of the
// last accepted event for that path. Dropped events are not queued.
type Debouncer struct {
	window time.Duration
	last   map[string]time.Time
	mu     sync.Mutex
}

// NewDebouncer creates a Debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether an event for path at now should be processed, and
// records it if so.
func (d *Debouncer) Allow(path string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.last[path]; ok && now.Sub(prev) < d.window {
		return false
	}
	d.last[path] = now
	return true
}
