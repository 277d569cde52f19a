package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/logger"
)

// ReloadCallback is called when config is reloaded.
// Receives the new config and returns any error.
type ReloadCallback func(*Config) error

// ConfigWatcher watches a config file for changes and triggers reload
// callbacks. Rapid successive writes (editors write-then-rename) are
// debounced into one reload.
type ConfigWatcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	done           chan struct{}
}

// NewConfigWatcher creates a new config file watcher
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     configPath,
		watcher:        watcher,
		callbacks:      make([]ReloadCallback, 0),
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Start begins watching for config changes in a background goroutine.
func (cw *ConfigWatcher) Start() {
	go func() {
		for {
			select {
			case <-cw.done:
				return
			case event, ok := <-cw.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cw.scheduleReload()
			case err, ok := <-cw.watcher.Errors:
				if !ok {
					return
				}
				logger.Logger.Warnw("Config watcher error", "error", err)
			}
		}
	}()
}

// Stop stops the watcher and releases its resources.
func (cw *ConfigWatcher) Stop() error {
	close(cw.done)
	return cw.watcher.Close()
}

// scheduleReload debounces reload triggers.
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, cw.reload)
}

// reload re-reads the config file and invokes all callbacks.
func (cw *ConfigWatcher) reload() {
	cfg, err := LoadFromFile(cw.configPath)
	if err != nil {
		logger.Logger.Warnw("Config reload failed, keeping previous config",
			"path", cw.configPath,
			"error", err,
		)
		return
	}

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			logger.Logger.Warnw("Config reload callback failed", "error", err)
		}
	}

	logger.Logger.Infow("Config reloaded", "path", cw.configPath)
}
