package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// Watcher watches a hierarchy config file and reloads the catalog on change.
type Watcher struct {
	logger  *telemetry.Logger
	loader  *Loader
	catalog *Catalog
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher that keeps catalog in sync with the config file.
func NewWatcher(logger *telemetry.Logger, loader *Loader, catalog *Catalog) *Watcher {
	return &Watcher{
		logger:  logger.NewComponentLogger("catalog-watcher"),
		loader:  loader,
		catalog: catalog,
	}
}

// Watch starts watching path for changes and reloads until ctx is cancelled.
// Editors often replace files via rename, so the parent directory is watched
// and events are filtered to the config file itself.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx, path)

	w.logger.WithField("path", path).Info("watching hierarchy config")
	return nil
}

// processEvents debounces change events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context, path string) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.WithField("op", event.Op.String()).Debug("hierarchy config changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				w.reload(path)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("watcher error")
		}
	}
}

// reload loads the config and swaps it in. A config that fails to parse or
// validate leaves the previous catalog in place.
func (w *Watcher) reload(path string) {
	cfg, err := w.loader.Load(path)
	if err != nil {
		w.logger.WithError(err).Error("failed to reload hierarchy config, keeping previous")
		return
	}

	w.catalog.Reload(cfg)
	w.logger.WithField("categories", len(cfg.Categories)).Info("hierarchy config reloaded")
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
