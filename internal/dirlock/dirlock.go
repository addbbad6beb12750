// Package dirlock implements a directory-scoped advisory lock used to
// give a single Send Worker (or the Resend Pipeline) exclusive
// ownership of a staging directory for the duration of one delivery
// session (spec.md §5: "Staging directories: owned exclusively by a
// single worker until it either empties them ... or leaves them").
package dirlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockDirName = ".afd_lock"

// ErrLockConflict is returned by TryLock when another process already
// holds the lock and it is not stale.
var ErrLockConflict = errors.New("dirlock: lock is held by another process")

// ErrNotLocked is returned by Heartbeat when the caller does not
// currently hold the lock. Unlock of a lock that is not held is a no-op.
var ErrNotLocked = errors.New("dirlock: lock is not held by this instance")

// LockOptions tunes staleness detection and retry pacing.
type LockOptions struct {
	// StaleThreshold is how long a lock directory may go without a
	// heartbeat before a competing TryLock is allowed to reclaim it
	// (a crashed worker never removes its own lock directory).
	StaleThreshold time.Duration
	// RetryInterval is how often Lock polls while waiting.
	RetryInterval time.Duration
}

func (o *LockOptions) withDefaults() LockOptions {
	out := LockOptions{StaleThreshold: 30 * time.Second, RetryInterval: 50 * time.Millisecond}
	if o == nil {
		return out
	}
	if o.StaleThreshold > 0 {
		out.StaleThreshold = o.StaleThreshold
	}
	if o.RetryInterval > 0 {
		out.RetryInterval = o.RetryInterval
	}
	return out
}

// Info describes a currently held lock.
type Info struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a directory-scoped advisory lock. Implementations are not
// safe for concurrent use by multiple goroutines holding the same
// *Lock value; use one Lock instance per goroutine/process.
type Lock interface {
	TryLock() error
	Lock(ctx context.Context) error
	Unlock() error
	IsLocked() bool
	IsHeldByMe() bool
	Info() (*Info, error)
	Heartbeat(ctx context.Context) error
}

type dirLock struct {
	dir      string
	opts     LockOptions
	heldByMe bool
}

// New returns a Lock scoped to dir. dir need not exist yet; TryLock
// creates it on first successful acquisition's parent as needed.
func New(dir string, opts *LockOptions) Lock {
	return &dirLock{dir: dir, opts: opts.withDefaults()}
}

func (l *dirLock) lockPath() string {
	return filepath.Join(l.dir, lockDirName)
}

func (l *dirLock) infoPath() string {
	return filepath.Join(l.lockPath(), "info.json")
}

// TryLock attempts to acquire the lock once, reclaiming it first if
// the existing lock directory's mtime is older than StaleThreshold —
// the only reclaim mechanism, since a crashed worker can never run its
// own cleanup path.
func (l *dirLock) TryLock() error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("dirlock: ensure %s: %w", l.dir, err)
	}

	if stat, err := os.Stat(l.lockPath()); err == nil {
		if time.Since(stat.ModTime()) > l.opts.StaleThreshold {
			_ = os.RemoveAll(l.lockPath())
		}
	}

	if err := os.Mkdir(l.lockPath(), 0700); err != nil {
		if os.IsExist(err) {
			return ErrLockConflict
		}
		return fmt.Errorf("dirlock: mkdir %s: %w", l.lockPath(), err)
	}

	info := Info{PID: os.Getpid(), AcquiredAt: time.Now()}
	if err := l.writeInfo(info); err != nil {
		_ = os.RemoveAll(l.lockPath())
		return err
	}
	l.heldByMe = true
	return nil
}

// Lock waits, polling every RetryInterval, until TryLock succeeds or
// ctx is done.
func (l *dirLock) Lock(ctx context.Context) error {
	for {
		err := l.TryLock()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.RetryInterval):
		}
	}
}

// Unlock releases the lock if held by this instance. Unlocking a lock
// not held by this instance is a no-op, matching the teacher's own
// idempotent-Unlock behavior.
func (l *dirLock) Unlock() error {
	if !l.heldByMe {
		return nil
	}
	if err := os.RemoveAll(l.lockPath()); err != nil {
		return fmt.Errorf("dirlock: remove %s: %w", l.lockPath(), err)
	}
	l.heldByMe = false
	return nil
}

// IsLocked reports whether any process currently holds the lock.
func (l *dirLock) IsLocked() bool {
	_, err := os.Stat(l.lockPath())
	return err == nil
}

// IsHeldByMe reports whether this instance holds the lock.
func (l *dirLock) IsHeldByMe() bool { return l.heldByMe }

// Info returns the current lock holder's recorded info, or nil if
// unlocked.
func (l *dirLock) Info() (*Info, error) {
	data, err := os.ReadFile(l.infoPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dirlock: read info: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("dirlock: decode info: %w", err)
	}
	return &info, nil
}

// Heartbeat refreshes the lock's timestamp so a live worker's lock is
// never mistaken for stale by a competing TryLock.
func (l *dirLock) Heartbeat(ctx context.Context) error {
	if !l.heldByMe {
		return ErrNotLocked
	}
	info := Info{PID: os.Getpid(), AcquiredAt: time.Now()}
	return l.writeInfo(info)
}

func (l *dirLock) writeInfo(info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.infoPath(), data, 0600); err != nil {
		return fmt.Errorf("dirlock: write info: %w", err)
	}
	now := time.Now()
	_ = os.Chtimes(l.lockPath(), now, now)
	return nil
}

// ForceUnlock removes any lock on dir regardless of ownership, for
// administrative recovery.
func ForceUnlock(dir string) error {
	if err := os.RemoveAll(filepath.Join(dir, lockDirName)); err != nil {
		return fmt.Errorf("dirlock: force unlock %s: %w", dir, err)
	}
	return nil
}
