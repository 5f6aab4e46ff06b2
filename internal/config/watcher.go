package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads tunables (specialist enable flags, dispatch limits)
// when the config file changes. Consumers read the current snapshot through
// Current; the pointer swap is the only synchronization needed.
type Watcher struct {
	path    string
	logger  *zap.Logger
	mu      sync.RWMutex
	current *Research
	onSwap  []func(*Research)
}

// NewWatcher wraps an initial config snapshot.
func NewWatcher(initial *Research, logger *zap.Logger) *Watcher {
	return &Watcher{path: Path(), logger: logger, current: initial}
}

// Current returns the latest config snapshot.
func (w *Watcher) Current() *Research {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnSwap registers a callback invoked after each successful reload.
// Must be called before Start.
func (w *Watcher) OnSwap(fn func(*Research)) {
	w.onSwap = append(w.onSwap, fn)
}

// Start watches the config file until ctx is done. Editors replace files on
// save, so the parent directory is watched and events are debounced.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}

	go func() {
		defer fw.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, w.reload)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous snapshot",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	w.logger.Info("Config reloaded", zap.String("path", w.path))
	for _, fn := range w.onSwap {
		fn(cfg)
	}
}
