package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"kaya/internal/logging"
)

// Watcher watches the policy document on disk and re-parses it on change,
// handing each new Config to the registered callbacks. Ported from the
// teacher's internal/core/mangle_watcher.go file-watch pattern and
// retargeted at the routing policy document (§4.1: "Reads a routing policy
// at startup") instead of Mangle rule files.
type Watcher struct {
	path      string
	watcher   *fsnotify.Watcher
	mu        sync.Mutex
	callbacks []func(*Config)
	done      chan struct{}
}

// NewWatcher creates a watcher for the policy document at path. The file
// need not exist yet — fsnotify watches the containing directory so it
// picks up later creation too.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, watcher: fw, done: make(chan struct{})}
	return w, nil
}

// OnChange registers a callback invoked with the freshly reloaded Config
// whenever the policy document changes.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching in the background. Safe to call once.
func (w *Watcher) Start() error {
	dir := dirOf(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	log := logging.Get(logging.CategoryRouter)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				log.Warn("policy reload failed: %v", err)
				continue
			}
			log.Info("policy document reloaded: %s", w.path)
			w.mu.Lock()
			cbs := append([]func(*Config){}, w.callbacks...)
			w.mu.Unlock()
			for _, cb := range cbs {
				cb(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("policy watcher error: %v", err)
		}
	}
}

// Stop terminates the background watch loop.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
