package fifo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesFifo(t *testing.T) {
	path := filepath.Join(t.TempDir(), FinName)
	require.NoError(t, Ensure(path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, fi.Mode()&os.ModeNamedPipe)

	// Idempotent on an existing fifo.
	require.NoError(t, Ensure(path))
}

func TestEnsureRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), WakeupName)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.Error(t, Ensure(path))
}

func TestPostWithoutReaderIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), WakeupName)
	require.NoError(t, Ensure(path))

	// No reader attached: the post is silently dropped.
	require.NoError(t, PostWakeup(path))
	require.NoError(t, PostPID(path, 1234))
}

func TestPostMissingFifoIsNoop(t *testing.T) {
	require.NoError(t, PostWakeup(filepath.Join(t.TempDir(), "absent")))
}

func TestWakeupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), WakeupName)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.False(t, Drain(r))

	require.NoError(t, PostWakeup(path))
	require.True(t, Drain(r))
	require.False(t, Drain(r))
}

func TestPIDRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FinName)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, PostPID(path, 4711))

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "4711\n", string(buf[:n]))
}

func TestTransferLogLineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), TransferLogName)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	tl := NewTransferLog(path)
	tl.now = func() time.Time {
		return time.Date(2026, 7, 31, 9, 15, 30, 0, time.UTC)
	}
	require.NoError(t, tl.Log(SignWarn, "host %s not responding", "mirror1"))

	buf := make([]byte, 256)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "31 09:15:30 <W> host mirror1 not responding\n", string(buf[:n]))
}
