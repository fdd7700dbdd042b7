// config_watch.go
// Hot-reloads the JSON config file. Watches the config directory rather
// than the file itself because most editors replace the file on save,
// which would orphan a file-level watch.
package ghosttype

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const configReloadDebounce = 200 * time.Millisecond

// ConfigWatcher reloads the config file on change and hands the merged,
// validated result to a callback.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(Config)
	logger   *slog.Logger

	mu     sync.Mutex
	reload *time.Timer
	done   chan struct{}
}

// WatchConfig watches the config file at path and invokes onChange with the
// freshly loaded config after each change. Rapid event bursts from editor
// save sequences are coalesced. Call Close to stop watching.
func WatchConfig(path string, onChange func(Config), logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config directory %s: %w", dir, err)
	}

	w := &ConfigWatcher{
		watcher:  watcher,
		path:     path,
		onChange: onChange,
		logger:   logger.With("component", "ConfigWatcher", "path", path),
		done:     make(chan struct{}),
	}
	go w.watchLoop()
	w.logger.Debug("Config watcher started", "dir", dir)
	return w, nil
}

func (w *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
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
			w.logger.Warn("Config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reload != nil {
		w.reload.Stop()
	}
	w.reload = time.AfterFunc(configReloadDebounce, func() {
		cfg := getDefaultConfig()
		loaded, err := LoadAndMergeConfig(w.path, &cfg, w.logger)
		if err != nil {
			w.logger.Warn("Config reload failed, keeping previous config", "error", err)
			return
		}
		if !loaded {
			w.logger.Debug("Config file removed, keeping previous config")
			return
		}
		if err := cfg.Validate(w.logger); err != nil {
			w.logger.Warn("Reloaded config failed validation, values were patched", "error", err)
		}
		w.logger.Info("Config reloaded")
		w.onChange(cfg)
	})
}

// Close stops the watcher and any pending reload.
func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	if w.reload != nil {
		w.reload.Stop()
	}
	w.mu.Unlock()
	close(w.done)
	return w.watcher.Close()
}
