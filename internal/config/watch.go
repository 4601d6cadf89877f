package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk on change and publishes the result to
// subscribers, debounced. Grounded on the teacher's internal/skills.Manager
// watch loop (fsnotify.Watcher, a debounced time.AfterFunc, Events/Errors
// select loop).
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)
}

// NewWatcher loads path once and returns a Watcher wrapping the result.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, debounce: 250 * time.Millisecond, logger: logger, current: cfg}, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked with the new Config after a
// successful reload. Callbacks run on the watch goroutine; they must not
// block.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start watches the config file for changes until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.path); err != nil {
		fsw.Close()
		return err
	}

	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()

	var timer *time.Timer
	scheduleReload := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config: watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config: reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()

	w.logger.Info("config: reloaded", "path", w.path)
	for _, fn := range listeners {
		fn(cfg)
	}
}
