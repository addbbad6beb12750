// Package scheduler watches the live staging queue and dispatches
// eligible staging directories to Send Workers. The outer cadence is a
// fixed-interval cron tick; between ticks the scheduler reacts to
// filesystem events on the queue root and to wake-up bytes posted on
// the fd_wake_up fifo by workers and the resend pipeline.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	robcron "github.com/robfig/cron/v3"

	"github.com/hfs/afd-sub007/internal/cron"
	"github.com/hfs/afd-sub007/internal/dirlock"
	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/logstore"
)

// StagingJob is one dispatchable staging directory.
type StagingJob struct {
	JobID    uint64
	Priority byte
	Dir      string
}

// Launcher runs one Send Worker against a staging directory. The
// scheduler calls Launch once per eligible directory and never
// concurrently for the same directory.
type Launcher interface {
	Launch(ctx context.Context, job StagingJob) error
}

// Scheduler drives the queue root. All fields must be set before
// Start; Jobs may be nil, in which case every job is treated as
// having no time window (always eligible).
type Scheduler struct {
	QueueRoot  string
	WakeupFifo string
	Jobs       *jobid.Map
	Launcher   Launcher
	Logger     logging.Logger

	// Tick is the outer scan cadence; zero means 10 seconds.
	Tick time.Duration

	// Store and MaxLogSize enable output-log rotation checks on each
	// tick when Store is non-nil and MaxLogSize > 0.
	Store      *logstore.Store
	MaxLogSize int64

	// Now is the clock used for schedule eligibility. Nil means
	// time.Now.
	Now func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) tick() time.Duration {
	if s.Tick > 0 {
		return s.Tick
	}
	return 10 * time.Second
}

// Eligible reports whether jobID may be processed at t. A job without
// time options has no window and is always eligible; a job with one or
// more "time <descriptor>" options is eligible iff any descriptor
// matches t. A descriptor that fails to parse means "never" for that
// descriptor (spec.md §4.1 failure semantics).
func (s *Scheduler) Eligible(jobID uint64, t time.Time) bool {
	if s.Jobs == nil {
		return true
	}
	ident, ok := s.Jobs.Get(jobID)
	if !ok {
		return true
	}

	hasWindow := false
	for _, opt := range append(ident.LocalOptions, ident.SendOptions...) {
		if opt.Kind != jobid.OptionTime {
			continue
		}
		hasWindow = true
		entry, err := cron.Parse(opt.Arg)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warnf("job %d: bad time descriptor %q: %v", jobID, opt.Arg, err)
			}
			continue
		}
		if cron.Matches(t, entry) {
			return true
		}
	}
	return !hasWindow
}

// Start runs the scheduler loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == nil {
		s.inflight = make(map[string]bool)
	}
	s.mu.Unlock()

	wakeup, err := fifo.OpenReader(s.WakeupFifo)
	if err != nil {
		return err
	}
	defer wakeup.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(s.QueueRoot); err != nil {
		return err
	}

	c := robcron.New()
	c.Schedule(robcron.Every(s.tick()), robcron.FuncJob(func() { s.Scan(ctx) }))
	c.Start()
	defer c.Stop()

	s.Scan(ctx)

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				s.Scan(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if s.Logger != nil {
				s.Logger.Warnf("queue watcher error: %v", err)
			}
		case <-poll.C:
			if fifo.Drain(wakeup) {
				s.Scan(ctx)
			}
		}
	}
}

// Scan walks the queue root once and dispatches every eligible,
// unlocked, not-yet-inflight staging directory. It also performs the
// output-log rotation check when configured.
func (s *Scheduler) Scan(ctx context.Context) {
	s.rotateIfNeeded()

	entries, err := os.ReadDir(s.QueueRoot)
	if err != nil {
		if s.Logger != nil && !os.IsNotExist(err) {
			s.Logger.Warnf("failed to read queue root %s: %v", s.QueueRoot, err)
		}
		return
	}

	now := s.now()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		job, ok := ParseStagingDirName(entry.Name())
		if !ok {
			continue
		}
		job.Dir = filepath.Join(s.QueueRoot, entry.Name())

		// A locked directory is still being filled by its producer.
		if dirlock.New(job.Dir, nil).IsLocked() {
			continue
		}
		if !s.Eligible(job.JobID, now) {
			continue
		}
		s.dispatch(ctx, job)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job StagingJob) {
	s.mu.Lock()
	if s.inflight == nil {
		s.inflight = make(map[string]bool)
	}
	if s.inflight[job.Dir] {
		s.mu.Unlock()
		return
	}
	s.inflight[job.Dir] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, job.Dir)
			s.mu.Unlock()
		}()
		if err := s.Launcher.Launch(ctx, job); err != nil && s.Logger != nil {
			s.Logger.Errorf("launch for job %d (%s) failed: %v", job.JobID, job.Dir, err)
		}
	}()
}

func (s *Scheduler) rotateIfNeeded() {
	if s.Store == nil || s.MaxLogSize <= 0 {
		return
	}
	should, err := s.Store.ShouldRotate(s.MaxLogSize)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warnf("rotation check failed: %v", err)
		}
		return
	}
	if !should {
		return
	}
	if err := s.Store.Rotate(); err != nil && s.Logger != nil {
		s.Logger.Warnf("log rotation failed: %v", err)
	}
}
