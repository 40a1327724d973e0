package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for a burst of file events to
// settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watch loads dir and reloads it whenever a file in it is created, written,
// renamed or removed. onReload, when non-nil, is called with the new lesson
// count after every reload. Watch blocks until ctx is cancelled.
func (lib *Library) Watch(ctx context.Context, dir string, debounce time.Duration, onReload func(n int)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("library: create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("library: watch %q: %w", dir, err)
	}

	reload := func() {
		n, err := lib.LoadDir(dir)
		if err != nil {
			slog.Warn("library: reload failed", "dir", dir, "err", err)
			return
		}
		slog.Info("library: lessons reloaded", "dir", dir, "count", n)
		if onReload != nil {
			onReload(n)
		}
	}
	reload()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&relevant == 0 || !isLessonFile(ev.Name) {
				continue
			}
			slog.Debug("library: lesson file changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("library: watcher error", "dir", dir, "err", err)
		case <-timer.C:
			reload()
		}
	}
}
