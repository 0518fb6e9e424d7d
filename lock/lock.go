// Package lock provides the corpus-level exclusive run lock.
//
// The lock is a JSON file created with O_EXCL, so acquisition is atomic
// on any local filesystem. A held lock carries enough identity (run ID,
// PID, hostname, heartbeat) for an operator to tell a live run from the
// wreckage of a crashed one. The pipeline never clears a foreign lock
// on its own; that is a deliberate maintenance action.
package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// FileName is the lock file's name inside the lock directory.
const FileName = "gleaner.lock"

// timeNow is swappable in tests.
var timeNow = time.Now

// Info identifies the run holding the lock.
type Info struct {
	RunID       string    `json:"run_id"`
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	AcquiredAt  time.Time `json:"acquired_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Age returns how long ago the holder last proved it was alive.
func (i Info) Age(now time.Time) time.Duration {
	last := i.HeartbeatAt
	if last.IsZero() {
		last = i.AcquiredAt
	}
	return now.Sub(last)
}

// Stale reports whether the holder's heartbeat is older than the
// staleness window.
func (i Info) Stale(staleAfter time.Duration, now time.Time) bool {
	return i.Age(now) > staleAfter
}

// Lock is a held run lock. Release it exactly once; Release is
// idempotent for convenience in deferred cleanup.
type Lock struct {
	path string
	info Info
	log  *zap.SugaredLogger

	mu       sync.Mutex
	released bool
	stop     chan struct{}
	done     chan struct{}
}

// Acquire creates the lock file for runID, failing with ErrLockHeld
// when another run already holds it. The error carries the holder's
// identity so the operator can decide whether to wait or clear.
func Acquire(dir, runID string) (*Lock, error) {
	if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "create lock dir %s", dir)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, config.DefaultFilePermissions)
	if err != nil {
		if os.IsExist(err) {
			return nil, heldError(path)
		}
		return nil, errors.Wrapf(err, "create lock file %s", path)
	}

	hostname, herr := os.Hostname()
	if herr != nil {
		hostname = "unknown"
	}
	now := timeNow().UTC()
	info := Info{
		RunID:       runID,
		PID:         os.Getpid(),
		Hostname:    hostname,
		AcquiredAt:  now,
		HeartbeatAt: now,
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrapf(err, "write lock file %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, errors.Wrapf(err, "close lock file %s", path)
	}

	l := &Lock{
		path: path,
		info: info,
		log:  logger.ComponentLogger("lock"),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	l.log.Debugw("lock acquired", logger.FieldRunID, runID, logger.FieldFile, path)
	return l, nil
}

// heldError reads the current holder and wraps ErrLockHeld with its
// identity. An unreadable or corrupt lock file still reports held;
// only clear may decide it is trash.
func heldError(path string) error {
	info, err := readInfo(path)
	if err != nil {
		return errors.Wrapf(errors.ErrLockHeld, "lock file %s exists but is unreadable: %v", path, err)
	}
	return errors.Wrapf(errors.ErrLockHeld,
		"held by run %s (pid %d on %s, heartbeat %s ago)",
		info.RunID, info.PID, info.Hostname, info.Age(timeNow().UTC()).Round(time.Second))
}

// Info returns the holder identity this lock was created with.
func (l *Lock) Info() Info {
	return l.info
}

// StartHeartbeat refreshes the lock file every interval until the lock
// is released or ctx is canceled. A run that dies stops heartbeating,
// which is what lets a later clear distinguish crash from live run.
func (l *Lock) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				if err := l.beat(); err != nil {
					l.log.Warnw("lock heartbeat failed", logger.FieldError, err)
				}
			}
		}
	}()
}

// beat rewrites the lock file with a fresh heartbeat. The write goes
// through a temp file and rename so inspection never sees torn JSON.
func (l *Lock) beat() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.info.HeartbeatAt = timeNow().UTC()
	return writeInfo(l.path, l.info)
}

// Release stops the heartbeat and removes the lock file. If the file on
// disk no longer belongs to this run (a forced clear plus re-acquire
// happened underneath us), it is left alone.
func (l *Lock) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	close(l.stop)
	l.mu.Unlock()

	current, err := readInfo(l.path)
	if err == nil && current.RunID != l.info.RunID {
		l.log.Warnw("lock file now belongs to another run, leaving it",
			logger.FieldRunID, l.info.RunID,
			"holder", current.RunID,
		)
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove lock file %s", l.path)
	}
	l.log.Debugw("lock released", logger.FieldRunID, l.info.RunID)
	return nil
}

// Inspect reads the lock file without touching it. ErrNotFound means no
// run holds the lock.
func Inspect(dir string) (*Info, error) {
	path := filepath.Join(dir, FileName)
	info, err := readInfo(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.NewNotFoundError("no lock file at %s", path)
		}
		return nil, err
	}
	return &info, nil
}

// Clear removes the lock file. Without force it only removes locks
// whose heartbeat is older than staleAfter, and reports ErrLockHeld
// with the holder's identity otherwise. It returns the evicted holder.
func Clear(dir string, staleAfter time.Duration, force bool) (*Info, error) {
	path := filepath.Join(dir, FileName)
	info, err := readInfo(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.NewNotFoundError("no lock file at %s", path)
		}
		if !force {
			return nil, errors.Wrapf(err, "lock file %s is unreadable; use force to remove", path)
		}
		info = Info{}
	}

	now := timeNow().UTC()
	if !force && !info.Stale(staleAfter, now) {
		return nil, errors.Wrapf(errors.ErrLockHeld,
			"run %s (pid %d on %s) heartbeat %s ago is within the %s staleness window",
			info.RunID, info.PID, info.Hostname, info.Age(now).Round(time.Second), staleAfter)
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("no lock file at %s", path)
		}
		return nil, errors.Wrapf(err, "remove lock file %s", path)
	}
	return &info, nil
}

func readInfo(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, errors.WithStack(err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, errors.Wrapf(err, "parse lock file %s", path)
	}
	return info, nil
}

func writeInfo(path string, info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, path))
}
