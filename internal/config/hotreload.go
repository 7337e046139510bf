package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the previous and the freshly loaded config when
// the file on disk changes. Handlers diff the two to decide what to apply
// live (the discoverable flag re-handshakes, rate limits swap in place).
type ChangeHandler func(old, cur *Config)

// Watcher reloads the config file when it changes on disk. Rapid editor
// write bursts are debounced (300ms); a reload that fails to parse keeps
// the previous config active.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	handlers []ChangeHandler
	current  *Config
	stopChan chan struct{}
	running  bool
}

// NewWatcher creates a watcher seeded with the currently active config.
func NewWatcher(path string, current *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     ExpandHome(path),
		watcher:  fsw,
		debounce: 300 * time.Millisecond,
		current:  current,
	}, nil
}

// OnChange registers a handler invoked after each successful reload.
func (w *Watcher) OnChange(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching. The config file may not exist yet, so the
// containing directory is watched and events are filtered by name.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// Watching the directory survives editors that replace the file.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.stopChan = make(chan struct{})
	w.running = true
	go w.watchLoop(w.stopChan)

	slog.Info("config watcher started", "path", w.path)
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
	w.watcher.Close()
	slog.Info("config watcher stopped")
}

func (w *Watcher) watchLoop(stopChan chan struct{}) {
	var debounceTimer *time.Timer

	for {
		select {
		case <-stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cur, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous config", "error", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cur
	handlers := make([]ChangeHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	for _, h := range handlers {
		h(old, cur)
	}
}
