package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"synbl/logger"
	"synbl/manager"

	"github.com/fsnotify/fsnotify"
)

// configWatcher pushes tunable changes from the config file into the live
// settings. Everything else needs a restart and is only reported.
type configWatcher struct {
	path     string
	settings *manager.LiveSettings
	overlay  func(*Config)

	mu      sync.Mutex
	current *Config
}

func newConfigWatcher(path string, cfg *Config, settings *manager.LiveSettings, overlay func(*Config)) *configWatcher {
	return &configWatcher{path: path, current: cfg, settings: settings, overlay: overlay}
}

// reload re-reads the file and applies it.
func (w *configWatcher) reload() error {
	var overlays []func(*Config)
	if w.overlay != nil {
		overlays = append(overlays, w.overlay)
	}
	next, err := LoadConfig(w.path, overlays...)
	if err != nil {
		return err
	}

	threshold, period, probation := next.Tunables()
	if err := w.settings.Apply(&threshold, &period, &probation); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	w.mu.Lock()
	ignored := w.current.restartOnly(next)
	w.current = next
	w.mu.Unlock()

	logger.Info("Config reloaded", "max_syn", threshold, "period", period, "probation", probation)
	if len(ignored) > 0 {
		logger.Warn("Config changes need a restart to take effect", "fields", ignored)
	}
	return nil
}

// run watches the config directory until ctx ends. The directory is watched
// rather than the file so that editors replacing the file are noticed.
func (w *configWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.reload(); err != nil {
				logger.Error("Config reload failed", "path", w.path, "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", "err", err)
		}
	}
}
