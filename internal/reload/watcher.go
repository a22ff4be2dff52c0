// Package reload watches the gateway's config file and reacts to edits
// without requiring a listener restart, the way pkg/watcher/filewatcher.go
// watches a workers tree — here scoped to a single file instead of a tree.
package reload

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is invoked, debounced, whenever the watched config file changes.
type Handler func()

// Watcher debounces fsnotify events on a single config file so that editors
// which write-then-rename (or write in several small chunks) only trigger
// one reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	handler  Handler
	debounce time.Duration
	stopChan chan struct{}
	timerMu  sync.Mutex
	timer    *time.Timer
}

// New creates a Watcher for path. It does not start watching until Start
// is called.
func New(path string, debounce time.Duration, handler Handler) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		path:     path,
		handler:  handler,
		debounce: debounce,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory (fsnotify watches
// directories, not bare files, so that editors which replace the file via
// rename are still observed) and runs the debounce loop in a goroutine.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.loop()
	log.Printf("config watcher started on %s", w.path)
	return nil
}

// Stop terminates the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	close(w.stopChan)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		log.Printf("config file changed: %s", w.path)
		w.handler()
	})
}
