package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a hooks.yaml file (and its containing directory, to
// catch editors that replace the file via rename-into-place) and calls
// an OnChange callback when it changes; it holds no Cache and reloads
// nothing itself. This backs the `rulez watch` diagnostic surface
// command; the hot path never needs it — the cache's own mtime+size
// check picks up changes on the next request.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// OnChange is invoked whenever the watched file is created or written.
type OnChange func(path string)

// NewWatcher watches the directory containing path and invokes onChange
// whenever path itself is created or written.
func NewWatcher(path string, onChange OnChange) (*Watcher, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &Watcher{fsWatcher: fw, done: make(chan struct{})}
	go w.processEvents(path, base, onChange)

	slog.Info("config watcher started", "path", path)
	return w, nil
}

func (w *Watcher) processEvents(path, base string, onChange OnChange) {
	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			slog.Info("hooks.yaml changed", "path", path)
			if onChange != nil {
				onChange(path)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying
// fsnotify watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
