package dirlock_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/dirlock"
)

func TestTryLock(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("AcquireLockSuccessfully", func(t *testing.T) {
		lock := dirlock.New(tmpDir, nil)
		require.NoError(t, lock.TryLock())
		require.True(t, lock.IsHeldByMe())
		require.True(t, lock.IsLocked())
		require.NoError(t, lock.Unlock())
	})

	t.Run("LockConflict", func(t *testing.T) {
		lock1 := dirlock.New(tmpDir, nil)
		lock2 := dirlock.New(tmpDir, nil)

		require.NoError(t, lock1.TryLock())
		err := lock2.TryLock()
		require.ErrorIs(t, err, dirlock.ErrLockConflict)
		require.False(t, lock2.IsHeldByMe())
		require.NoError(t, lock1.Unlock())
	})

	t.Run("ReacquireAfterUnlock", func(t *testing.T) {
		lock := dirlock.New(tmpDir, nil)
		require.NoError(t, lock.TryLock())
		require.NoError(t, lock.Unlock())
		require.NoError(t, lock.TryLock())
		require.NoError(t, lock.Unlock())
	})
}

func TestLockWaitsThenAcquires(t *testing.T) {
	tmpDir := t.TempDir()
	lock1 := dirlock.New(tmpDir, &dirlock.LockOptions{RetryInterval: 10 * time.Millisecond})
	lock2 := dirlock.New(tmpDir, &dirlock.LockOptions{RetryInterval: 10 * time.Millisecond})

	require.NoError(t, lock1.TryLock())

	released := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lock1.Unlock()
		close(released)
	}()

	ctx := context.Background()
	require.NoError(t, lock2.Lock(ctx))
	<-released
	require.NoError(t, lock2.Unlock())
}

func TestLockContextCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	lock1 := dirlock.New(tmpDir, nil)
	lock2 := dirlock.New(tmpDir, nil)

	require.NoError(t, lock1.TryLock())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := lock2.Lock(ctx)
	require.Error(t, err)
	require.False(t, lock2.IsHeldByMe())
	require.NoError(t, lock1.Unlock())
}

func TestStaleLockReclaimed(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, ".afd_lock")
	require.NoError(t, os.Mkdir(lockPath, 0700))

	pastTime := time.Now().Add(-60 * time.Second)
	require.NoError(t, os.Chtimes(lockPath, pastTime, pastTime))

	lock := dirlock.New(tmpDir, &dirlock.LockOptions{StaleThreshold: 30 * time.Second})
	require.NoError(t, lock.TryLock())
	require.True(t, lock.IsHeldByMe())
	require.NoError(t, lock.Unlock())
}

func TestForceUnlock(t *testing.T) {
	tmpDir := t.TempDir()
	lock := dirlock.New(tmpDir, nil)
	require.NoError(t, lock.TryLock())
	require.True(t, lock.IsLocked())

	require.NoError(t, dirlock.ForceUnlock(tmpDir))
	require.False(t, lock.IsLocked())
}

func TestHeartbeatUpdatesTimestamp(t *testing.T) {
	tmpDir := t.TempDir()
	lock := dirlock.New(tmpDir, nil)
	require.NoError(t, lock.TryLock())

	info1, err := lock.Info()
	require.NoError(t, err)
	require.NotNil(t, info1)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, lock.Heartbeat(context.Background()))

	info2, err := lock.Info()
	require.NoError(t, err)
	require.True(t, info2.AcquiredAt.After(info1.AcquiredAt))
	require.NoError(t, lock.Unlock())
}

func TestHeartbeatWithoutLockFails(t *testing.T) {
	lock := dirlock.New(t.TempDir(), nil)
	err := lock.Heartbeat(context.Background())
	require.ErrorIs(t, err, dirlock.ErrNotLocked)
}
