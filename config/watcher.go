package config

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadFunc is called with the previous and freshly loaded config
// after the watched file changes and the new config validates.
type ReloadFunc func(old, new *Config)

// Watcher polls a config file's modification time and reloads it on
// change. Polling keeps the watcher portable; config files change
// rarely enough that event-based watching buys nothing here. A reload
// that fails validation is logged and skipped, keeping the last good
// config active.
type Watcher struct {
	loader   *Loader
	path     string
	interval time.Duration

	mu      sync.RWMutex
	current *Config
	lastMod time.Time

	callbacks []ReloadFunc

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	logger *zap.Logger
}

// NewWatcher creates a watcher around an already loaded config. The
// interval defaults to 30 seconds when non-positive.
func NewWatcher(loader *Loader, path string, initial *Config, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		loader:   loader,
		path:     path,
		interval: interval,
		current:  initial,
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "config_watcher")),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// OnReload registers a callback invoked after each successful reload.
// Must be called before Start.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start launches the polling loop.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
		w.logger.Info("config watcher started",
			zap.String("path", w.path),
			zap.Duration("interval", w.interval),
		)
	})
}

// Stop halts the polling loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Transient deletion during atomic replace; keep the current
		// config and try again next tick.
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	fresh, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload rejected", zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = fresh
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.path))
	for _, fn := range w.callbacks {
		fn(old, fresh)
	}
}
