package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchTuning reloads the tuning file into reg whenever it is written or
// recreated, until ctx is cancelled. A file that fails to load leaves the
// previous tuning in place. onReload, if non-nil, is called after every
// successful swap.
func WatchTuning(ctx context.Context, path string, c *Catalog, reg *TuningRegistry, logger *zap.Logger, onReload func(Tuning)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			t, err := LoadTuning(path, c)
			if err != nil {
				logger.Warn("tuning reload failed, keeping previous values",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}
			if t.Checksum == reg.Checksum() {
				continue
			}
			reg.Replace(t)
			logger.Info("tuning reloaded",
				zap.String("path", path),
				zap.String("checksum", t.Checksum),
			)
			if onReload != nil {
				onReload(t)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
