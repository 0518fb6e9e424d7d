package status

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// SnapshotWatcher fires a callback whenever the pipeline republishes
// status.json. The snapshot lands via rename, which swaps the inode, so
// the output directory is watched rather than the file itself.
type SnapshotWatcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func()

	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
}

// NewSnapshotWatcher watches outputDir for snapshot publishes.
func NewSnapshotWatcher(outputDir string, onChange func()) (*SnapshotWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := watcher.Add(outputDir); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch output dir %s", outputDir)
	}
	return &SnapshotWatcher{
		dir:            outputDir,
		watcher:        watcher,
		onChange:       onChange,
		debouncePeriod: 500 * time.Millisecond, // Coalesce the per-document publish burst
	}, nil
}

// Watch blocks until ctx is cancelled, invoking the callback (debounced)
// each time the snapshot changes. Cancellation is the normal way to stop
// watching and returns nil.
func (w *SnapshotWatcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != SnapshotName {
				continue
			}
			// Rename delivers the publish as Create on this platform set;
			// Write covers filesystems that rewrite in place.
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Snapshot watcher error",
				"error", err)
		}
	}
}

// scheduleChange debounces rapid publishes into one callback.
func (w *SnapshotWatcher) scheduleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.onChange)
}

func (w *SnapshotWatcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}
