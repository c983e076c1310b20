package processing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a config file must be quiet before a change
// is acted on.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls onChange each time the content of filename changes, until ctx
// is cancelled. The containing directory is watched so editors that save by
// renaming over the file are seen. Events that leave the content unchanged
// are ignored.
func Watch(ctx context.Context, filename string, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return fmt.Errorf("resolving watch path: %w", err)
	}
	lastSum := fileSum(absPath)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	slog.Info("watching for changes", "path", absPath)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)

		case <-timer.C:
			sum := fileSum(absPath)
			if sum == nil || bytes.Equal(sum, lastSum) {
				slog.Debug("content unchanged, skipping", "path", absPath)
				continue
			}
			lastSum = sum
			slog.Info("config changed", "path", absPath)
			onChange()
		}
	}
}

func fileSum(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
