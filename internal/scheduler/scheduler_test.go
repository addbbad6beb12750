package scheduler_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/dirlock"
	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/scheduler"
	"github.com/hfs/afd-sub007/internal/worker"
)

type recordingLauncher struct {
	mu   sync.Mutex
	jobs []scheduler.StagingJob
	done chan struct{}
}

func newRecordingLauncher(expect int) *recordingLauncher {
	return &recordingLauncher{done: make(chan struct{}, expect)}
}

func (l *recordingLauncher) Launch(_ context.Context, job scheduler.StagingJob) error {
	l.mu.Lock()
	l.jobs = append(l.jobs, job)
	l.mu.Unlock()
	l.done <- struct{}{}
	return nil
}

func (l *recordingLauncher) launched() []scheduler.StagingJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]scheduler.StagingJob(nil), l.jobs...)
}

func waitLaunches(t *testing.T, l *recordingLauncher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-l.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for launch %d of %d", i+1, n)
		}
	}
}

func TestParseStagingDirName(t *testing.T) {
	job, ok := scheduler.ParseStagingDirName("3_1700000000_17_42")
	require.True(t, ok)
	require.Equal(t, byte(3), job.Priority)
	require.Equal(t, uint64(42), job.JobID)

	job, ok = scheduler.ParseStagingDirName("1700000000_17_42")
	require.True(t, ok)
	require.Equal(t, worker.NoPriority, job.Priority)
	require.Equal(t, uint64(42), job.JobID)

	for _, bad := range []string{"", "x", "a_b_c", "1_2", "9_1700000000_17_42_extra"} {
		_, ok := scheduler.ParseStagingDirName(bad)
		require.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestScanDispatchesStagingDirs(t *testing.T) {
	queueRoot := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(queueRoot, "3_1700000000_1_42"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(queueRoot, "1700000000_2_9"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(queueRoot, "not-a-staging-dir"), 0o755))

	launcher := newRecordingLauncher(2)
	s := &scheduler.Scheduler{
		QueueRoot: queueRoot,
		Launcher:  launcher,
	}
	s.Scan(context.Background())
	waitLaunches(t, launcher, 2)

	jobs := launcher.launched()
	ids := map[uint64]bool{}
	for _, j := range jobs {
		ids[j.JobID] = true
	}
	require.Equal(t, map[uint64]bool{42: true, 9: true}, ids)
}

func TestScanSkipsLockedDirs(t *testing.T) {
	queueRoot := t.TempDir()
	dir := filepath.Join(queueRoot, "3_1700000000_1_42")
	require.NoError(t, os.Mkdir(dir, 0o755))

	lock := dirlock.New(dir, nil)
	require.NoError(t, lock.TryLock())
	defer lock.Unlock()

	launcher := newRecordingLauncher(1)
	s := &scheduler.Scheduler{QueueRoot: queueRoot, Launcher: launcher}
	s.Scan(context.Background())

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, launcher.launched())
}

func TestEligibleHonorsTimeWindow(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "jobs")
	recipient, err := jobid.ParseRecipientURL("scp://afduser@remote.example.org/incoming")
	require.NoError(t, err)
	require.NoError(t, jobid.Encode(mapPath, []jobid.JobIdentity{
		{
			JobID:       1,
			Recipient:   recipient,
			SendOptions: []jobid.Option{jobid.ParseOption("time 0 12 * * *")},
		},
		{
			JobID:       2,
			Recipient:   recipient,
			SendOptions: []jobid.Option{jobid.ParseOption("priority 3")},
		},
		{
			JobID:       3,
			Recipient:   recipient,
			SendOptions: []jobid.Option{jobid.ParseOption("time not a cron")},
		},
	}))
	jobs, err := jobid.Open(mapPath, filepath.Join(dir, "absent"))
	require.NoError(t, err)
	defer jobs.Close()

	s := &scheduler.Scheduler{Jobs: jobs}

	noon := time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local)
	morning := time.Date(2026, 7, 31, 9, 30, 0, 0, time.Local)

	require.True(t, s.Eligible(1, noon))
	require.False(t, s.Eligible(1, morning))

	// No time window: always eligible.
	require.True(t, s.Eligible(2, noon))
	require.True(t, s.Eligible(2, morning))

	// Unparseable window means "never" (spec'd failure semantics).
	require.False(t, s.Eligible(3, noon))

	// Unknown job: no window information, dispatch it.
	require.True(t, s.Eligible(99, noon))
}

func TestStartReactsToWakeupAndNewDirs(t *testing.T) {
	queueRoot := t.TempDir()
	wakeupPath := filepath.Join(t.TempDir(), fifo.WakeupName)

	launcher := newRecordingLauncher(2)
	s := &scheduler.Scheduler{
		QueueRoot:  queueRoot,
		WakeupFifo: wakeupPath,
		Launcher:   launcher,
		Tick:       time.Hour, // only event-driven scans in this test
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	// Give the watcher a moment to attach, then drop a staging dir in.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.Mkdir(filepath.Join(queueRoot, "3_1700000000_1_42"), 0o755))
	waitLaunches(t, launcher, 1)

	// A wake-up byte triggers a re-scan that finds the second dir.
	require.NoError(t, os.Mkdir(filepath.Join(queueRoot, "3_1700000001_2_43"), 0o755))
	require.NoError(t, fifo.PostWakeup(wakeupPath))
	waitLaunches(t, launcher, 1)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
