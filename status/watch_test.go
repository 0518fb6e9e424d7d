package status

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publish mimics the store's tmp-write-then-rename export.
func publish(t *testing.T, dir, name, body string) {
	t.Helper()
	tmp := filepath.Join(dir, name+".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func TestSnapshotWatcher(t *testing.T) {
	t.Run("fires after a snapshot publish", func(t *testing.T) {
		dir := t.TempDir()
		fired := make(chan struct{}, 1)

		w, err := NewSnapshotWatcher(dir, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
		require.NoError(t, err)
		w.debouncePeriod = 20 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- w.Watch(ctx) }()

		publish(t, dir, SnapshotName, `{"counts":{}}`)

		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatal("watcher never fired for a snapshot publish")
		}

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop on cancellation")
		}
	})

	t.Run("ignores files other than the snapshot", func(t *testing.T) {
		dir := t.TempDir()
		fired := make(chan struct{}, 1)

		w, err := NewSnapshotWatcher(dir, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
		require.NoError(t, err)
		w.debouncePeriod = 20 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Watch(ctx)

		publish(t, dir, "unrelated.json", `{}`)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "run.log"), []byte("x"), 0o644))

		select {
		case <-fired:
			t.Fatal("watcher fired for an unrelated file")
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("coalesces a publish burst into one callback", func(t *testing.T) {
		dir := t.TempDir()
		var calls atomic.Int32
		counted := make(chan struct{}, 16)

		w, err := NewSnapshotWatcher(dir, func() {
			calls.Add(1)
			counted <- struct{}{}
		})
		require.NoError(t, err)
		w.debouncePeriod = 100 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Watch(ctx)

		for i := 0; i < 5; i++ {
			publish(t, dir, SnapshotName, `{"counts":{}}`)
			time.Sleep(5 * time.Millisecond)
		}

		select {
		case <-counted:
		case <-time.After(5 * time.Second):
			t.Fatal("watcher never fired for the burst")
		}
		// A trailing publish may arm one more timer, but five publishes
		// inside one debounce window must not produce five callbacks.
		time.Sleep(200 * time.Millisecond)
		assert.LessOrEqual(t, calls.Load(), int32(2))
	})

	t.Run("refuses a directory that does not exist", func(t *testing.T) {
		_, err := NewSnapshotWatcher(filepath.Join(t.TempDir(), "nope"), func() {})
		assert.Error(t, err)
	})
}
