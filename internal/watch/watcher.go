package watch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher feeds create/write events for the watched root into a Debouncer.
type Watcher struct {
	dir string
	deb *Debouncer

	fs *fsnotify.Watcher
	wg sync.WaitGroup
}

func NewWatcher(dir string, deb *Debouncer) *Watcher {
	return &Watcher{dir: dir, deb: deb}
}

func (w *Watcher) Start() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	if err := fs.Add(w.dir); err != nil {
		_ = fs.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fs = fs

	w.wg.Add(1)
	go w.loop()

	slog.Info("watching directory", slog.String("dir", w.dir))
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.deb.Notify(ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop closes the event source. No new events reach the debouncer after it
// returns.
func (w *Watcher) Stop() error {
	if w.fs == nil {
		return nil
	}
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
