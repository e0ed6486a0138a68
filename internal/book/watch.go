package book

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle
const DefaultDebounce = 200 * time.Millisecond

// Watch reloads the book at path whenever it changes on disk and calls
// onChange with the new book. Editors that replace the file are handled by
// watching the parent directory. Unparseable or unchanged content is
// skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Book)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Debug("Watching book", "path", abs)

	last := hashFile(abs)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			log.Debug("Book file event", "file", event.Name, "op", event.Op)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("Book watcher error", "error", err)

		case <-timer.C:
			sum := hashFile(abs)
			if sum == last {
				continue
			}
			b, err := Load(abs)
			if err != nil {
				log.Warn("Ignoring unreadable book change", "path", abs, "error", err)
				continue
			}
			last = sum
			log.Info("Book reloaded", "path", abs, "pages", len(b.Pages))
			onChange(b)
		}
	}
}

func hashFile(path string) [sha256.Size]byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}
