package scenario

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// DefaultDebounce is how long Watch waits after the last write before calling back.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls fn each time the file at path is written or replaced, after writes have
// settled for debounce. fn runs on the watching goroutine, so callbacks never overlap.
// Watch blocks until ctx is done or the watcher fails.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger, fn func()) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand scenario path %q: %w", path, err)
	}
	target, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("failed to resolve scenario path %q: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file instead of writing it, so watch the directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", target, err)
	}
	logger.Info("Watching scenario file for changes.", zap.String("path", target))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

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
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}

		case <-timer.C:
			logger.Info("Scenario file changed.", zap.String("path", target))
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", zap.Error(err))
		}
	}
}
