package resend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hfs/afd-sub007/internal/dirlock"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/worker"
)

// MaxCopiedFiles bounds how many files go into one reinjected staging
// directory before it is closed (signaling the scheduler) and a fresh
// one is opened (spec.md §4.5 step 3).
const MaxCopiedFiles = 100

// msgCounter is the process-wide per-second counter used in staging
// directory names; it wraps at worker.MaxMsgPerSec (spec.md §4.5:
// "the per-second counter is atomic across the process and wraps at
// MAX_MSG_PER_SEC").
var msgCounter uint32

func nextMsgCounter() uint32 {
	return atomic.AddUint32(&msgCounter, 1) % worker.MaxMsgPerSec
}

// Reinjector places archived files back into the live staging queue so
// the normal scheduler/worker path delivers them again (spec.md §4.5
// step 3).
type Reinjector struct {
	QueueRoot   string
	ArchiveRoot string

	// Jobs resolves a group's priority from its JobIdentity. Nil means
	// every directory name carries NO_PRIORITY's prefix-less form.
	Jobs *jobid.Map

	// Wakeup posts the scheduler wake-up byte each time a staging
	// directory is closed. Nil disables signaling.
	Wakeup func() error

	Logger logging.Logger
}

// stagingBatch is one open destination sub-directory being filled.
type stagingBatch struct {
	dir   string
	lock  dirlock.Lock
	count int
}

// allocBatch creates a fresh destination sub-directory named
// <priority>_<timestamp>_<counter>_<jobid> under the queue root and
// takes the staging-exclusivity lock on it. Allocation failure aborts
// the entire resend (spec.md §4.5 step 3: "if allocation fails because
// the name exists or the filesystem rejects it (EMLINK, ENOSPC), the
// entire resend is aborted").
func (r *Reinjector) allocBatch(jobID uint64, priority byte) (*stagingBatch, error) {
	counter := nextMsgCounter()
	var name string
	if priority == worker.NoPriority {
		name = fmt.Sprintf("%d_%d_%d", time.Now().Unix(), counter, jobID)
	} else {
		name = fmt.Sprintf("%d_%d_%d_%d", priority, time.Now().Unix(), counter, jobID)
	}
	dir := filepath.Join(r.QueueRoot, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("resend: allocate staging directory %s: %w", dir, err)
	}
	lock := dirlock.New(dir, nil)
	if err := lock.TryLock(); err != nil {
		return nil, fmt.Errorf("resend: lock staging directory %s: %w", dir, err)
	}
	return &stagingBatch{dir: dir, lock: lock}, nil
}

// closeBatch releases the batch's lock and signals the scheduler that
// a filled staging directory is ready.
func (r *Reinjector) closeBatch(b *stagingBatch) {
	if err := b.lock.Unlock(); err != nil && r.Logger != nil {
		r.Logger.Warnf("failed to unlock staging directory %s: %v", b.dir, err)
	}
	if r.Wakeup != nil {
		if err := r.Wakeup(); err != nil && r.Logger != nil {
			r.Logger.Warnf("failed to post scheduler wake-up: %v", err)
		}
	}
}

// linkOrCopy hardlinks src to dst, falling back to copy on EXDEV. An
// existing dst is replaced and reported as an overwrite.
func linkOrCopy(src, dst string) (overwrite bool, err error) {
	linkErr := os.Link(src, dst)
	switch {
	case linkErr == nil:
		return false, nil
	case errors.Is(linkErr, syscall.EEXIST):
		if err := copyFile(src, dst); err != nil {
			return true, err
		}
		return true, nil
	case errors.Is(linkErr, syscall.EXDEV):
		if err := copyFile(src, dst); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, linkErr
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// Reinject processes the pending groups one at a time, in first-seen
// order, filling fresh staging directories by hardlink-or-copy. Per-
// file failures mark the entry failed and continue; an allocation
// failure aborts the entire resend. The returned Summary covers only
// the reinject phase.
func (r *Reinjector) Reinject(ctx context.Context, order []uint64, groups map[uint64][]*Entry, limit *limitCounter) (Summary, error) {
	var s Summary

	for _, jobID := range order {
		entries := groups[jobID]

		var priority byte = worker.NoPriority
		if r.Jobs != nil {
			if ident, ok := r.Jobs.Get(jobID); ok {
				priority = ident.Priority
			}
		}

		batch, err := r.allocBatch(jobID, priority)
		if err != nil {
			return s, err
		}

		for _, e := range entries {
			if ctx.Err() != nil {
				r.closeBatch(batch)
				return s, ctx.Err()
			}
			if limit != nil && limit.reached() {
				s.LimitReached = true
				s.Limit = limit.limit
				r.closeBatch(batch)
				return s, nil
			}

			if batch.count == MaxCopiedFiles {
				r.closeBatch(batch)
				batch, err = r.allocBatch(jobID, priority)
				if err != nil {
					return s, err
				}
			}

			src := filepath.Join(r.ArchiveRoot, e.ArchiveSubpath)
			dst := filepath.Join(batch.dir, e.LocalFilename)
			overwrite, err := linkOrCopy(src, dst)
			if err != nil {
				e.Status = StatusFailed
				if r.Logger != nil {
					r.Logger.Warnf("reinject of %s failed: %v", e.LocalFilename, err)
				}
				continue
			}

			e.Status = StatusDone
			batch.count++
			s.Resent++
			if overwrite {
				s.Overwrites++
			}
			if limit != nil {
				limit.recordDelivery(overwrite)
			}
		}

		r.closeBatch(batch)
	}

	return s, nil
}
