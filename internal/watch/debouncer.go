package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Debouncer coalesces bursts of raw filesystem events per path into a single
// ready callback once a quiet period elapses with no further events. Each
// path owns at most one pending timer; a new event replaces it.
type Debouncer struct {
	quiet    time.Duration
	patterns []string
	onReady  func(path string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewDebouncer(quiet time.Duration, patterns []string, onReady func(path string)) *Debouncer {
	return &Debouncer{
		quiet:    quiet,
		patterns: patterns,
		onReady:  onReady,
		timers:   make(map[string]*time.Timer),
	}
}

// Notify registers a raw event for path. Paths matching no pattern are
// ignored; repeated events for the same path reset its quiet-period timer.
func (d *Debouncer) Notify(path string) {
	if !d.Matches(path) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.quiet, func() { d.fire(path) })
}

func (d *Debouncer) fire(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	d.mu.Unlock()

	// The file may have been deleted between the last event and timer
	// expiry; drop silently in that case.
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	d.onReady(path)
}

// Matches reports whether path matches one of the configured patterns: a
// case-insensitive `*.ext` extension pattern or an exact filename.
func (d *Debouncer) Matches(path string) bool {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	for _, p := range d.patterns {
		if strings.HasPrefix(p, "*.") {
			if ext == strings.ToLower(p[1:]) {
				return true
			}
		} else if base == p {
			return true
		}
	}
	return false
}

// CancelAll synchronously stops every pending timer and rejects further
// events. Safe to call more than once.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}

// PendingCount returns the number of paths with an unfired timer.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
