package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvata/gleaner/errors"
)

func writeLockFile(t *testing.T, dir string, info Info) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), data, 0o644))
}

func TestAcquire(t *testing.T) {
	t.Run("records the holder identity", func(t *testing.T) {
		dir := t.TempDir()

		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)
		defer l.Release()

		info, err := Inspect(dir)
		require.NoError(t, err)
		assert.Equal(t, "run-1", info.RunID)
		assert.Equal(t, os.Getpid(), info.PID)
		assert.NotEmpty(t, info.Hostname)
		assert.False(t, info.AcquiredAt.IsZero())
	})

	t.Run("refuses while another run holds the lock", func(t *testing.T) {
		dir := t.TempDir()

		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)
		defer l.Release()

		_, err = Acquire(dir, "run-2")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrLockHeld))
		assert.Contains(t, err.Error(), "run-1")
	})

	t.Run("admits exactly one of many concurrent acquirers", func(t *testing.T) {
		dir := t.TempDir()

		var wg sync.WaitGroup
		var mu sync.Mutex
		var winners []*Lock
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l, err := Acquire(dir, "contender"); err == nil {
					mu.Lock()
					winners = append(winners, l)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, winners, 1)
		winners[0].Release()
	})

	t.Run("can be re-acquired after release", func(t *testing.T) {
		dir := t.TempDir()

		l1, err := Acquire(dir, "run-1")
		require.NoError(t, err)
		require.NoError(t, l1.Release())

		l2, err := Acquire(dir, "run-2")
		require.NoError(t, err)
		defer l2.Release()

		info, err := Inspect(dir)
		require.NoError(t, err)
		assert.Equal(t, "run-2", info.RunID)
	})
}

func TestRelease(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)

		require.NoError(t, l.Release())
		require.NoError(t, l.Release())

		_, err = Inspect(dir)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("leaves a lock that now belongs to another run", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)

		// A forced clear and re-acquire happened underneath us.
		writeLockFile(t, dir, Info{RunID: "run-2", PID: 999, AcquiredAt: time.Now().UTC()})

		require.NoError(t, l.Release())

		info, err := Inspect(dir)
		require.NoError(t, err)
		assert.Equal(t, "run-2", info.RunID)
	})
}

func TestHeartbeat(t *testing.T) {
	t.Run("keeps refreshing the lock file while held", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)
		defer l.Release()

		before, err := Inspect(dir)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		l.StartHeartbeat(ctx, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			after, err := Inspect(dir)
			return err == nil && after.HeartbeatAt.After(before.HeartbeatAt)
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("stops once the lock is released", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		l.StartHeartbeat(ctx, 5*time.Millisecond)
		require.NoError(t, l.Release())

		select {
		case <-l.done:
		case <-time.After(time.Second):
			t.Fatal("heartbeat goroutine did not exit")
		}
		_, err = Inspect(dir)
		assert.True(t, errors.IsNotFoundError(err), "released lock must stay released")
	})
}

func TestInspect(t *testing.T) {
	t.Run("reports not found when nothing holds the lock", func(t *testing.T) {
		_, err := Inspect(t.TempDir())
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestClear(t *testing.T) {
	staleAfter := time.Hour

	t.Run("refuses a live lock without force", func(t *testing.T) {
		dir := t.TempDir()
		writeLockFile(t, dir, Info{
			RunID:       "live-run",
			PID:         4242,
			Hostname:    "worker-1",
			AcquiredAt:  time.Now().UTC(),
			HeartbeatAt: time.Now().UTC(),
		})

		_, err := Clear(dir, staleAfter, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrLockHeld))
		assert.Contains(t, err.Error(), "live-run")

		_, err = Inspect(dir)
		assert.NoError(t, err, "lock must survive a refused clear")
	})

	t.Run("removes a lock whose heartbeat went stale", func(t *testing.T) {
		dir := t.TempDir()
		old := time.Now().UTC().Add(-2 * time.Hour)
		writeLockFile(t, dir, Info{RunID: "dead-run", PID: 1, AcquiredAt: old, HeartbeatAt: old})

		evicted, err := Clear(dir, staleAfter, false)
		require.NoError(t, err)
		assert.Equal(t, "dead-run", evicted.RunID)

		_, err = Inspect(dir)
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("falls back to acquisition time when heartbeat is missing", func(t *testing.T) {
		dir := t.TempDir()
		writeLockFile(t, dir, Info{RunID: "old-format", PID: 1, AcquiredAt: time.Now().UTC().Add(-3 * time.Hour)})

		_, err := Clear(dir, staleAfter, false)
		require.NoError(t, err)
	})

	t.Run("force removes a live lock", func(t *testing.T) {
		dir := t.TempDir()
		l, err := Acquire(dir, "run-1")
		require.NoError(t, err)
		defer l.Release()

		evicted, err := Clear(dir, staleAfter, true)
		require.NoError(t, err)
		assert.Equal(t, "run-1", evicted.RunID)
	})

	t.Run("force removes even a corrupt lock file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("not json{"), 0o644))

		_, err := Clear(dir, staleAfter, false)
		require.Error(t, err, "corrupt lock needs an explicit force")

		_, err = Clear(dir, staleAfter, true)
		require.NoError(t, err)
	})

	t.Run("reports not found when there is nothing to clear", func(t *testing.T) {
		_, err := Clear(t.TempDir(), staleAfter, false)
		assert.True(t, errors.IsNotFoundError(err))
	})
}
