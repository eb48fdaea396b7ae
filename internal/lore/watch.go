package lore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/safetale/safetale-sync/internal/logger"
)

// DefaultWatchDelay is how long Watch waits after the last change before
// re-ingesting, so editors that write in several steps trigger one run.
const DefaultWatchDelay = 500 * time.Millisecond

// Watch re-ingests paths into store whenever one of them changes, until ctx
// is cancelled. Each run recreates the store. onIngest, if not nil, is
// called after every run with its result.
func Watch(ctx context.Context, store Store, paths []string, delay time.Duration, onIngest func(int, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch directories so files replaced by rename are still seen.
	watched := make(map[string]bool, len(paths))
	targets := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched[dir] = true
	}

	if delay <= 0 {
		delay = DefaultWatchDelay
	}
	timer := time.NewTimer(delay)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Lore source changed: %s (%s)", event.Name, event.Op)
			timer.Reset(delay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error: %v", err)
		case <-timer.C:
			n, err := Ingest(ctx, store, paths, IngestOptions{Recreate: true})
			if err != nil {
				logger.Error("Re-ingest failed: %v", err)
			} else {
				logger.Info("Re-ingested %d lore chunks", n)
			}
			if onIngest != nil {
				onIngest(n, err)
			}
		}
	}
}
