package resend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/transport"
	"github.com/hfs/afd-sub007/internal/worker"
)

// Destination carries the operator-supplied parameters of a direct
// send (spec.md §4.5 step 4: "run an in-process Send Worker per group,
// but with the log output routed to an operator-visible scrolling text
// sink rather than the persistent transfer log").
type Destination struct {
	Host         string
	Port         int
	User         string
	Credential   string // composite <i>...</i><p>...</p> form or bare password
	Directory    string
	TransferMode string
	LockPolicy   string
	BlockSize    int
	// Transport carries the per-call timeout and any remaining driver
	// knobs; its addressing fields are overwritten from Host/Port/
	// Directory above.
	Transport transport.Config
}

// DirectSender drives an in-process Send Worker per pending group
// against an operator-supplied destination. The persistent output log
// is never written; progress goes to Logger only.
type DirectSender struct {
	ArchiveRoot string
	HSA         *hsa.Array
	HostSlot    int

	// NewDriver supplies the transport for each group's worker run.
	// Nil defaults to the SFTP driver.
	NewDriver func() transport.Driver

	Logger logging.Logger
}

func (d *DirectSender) driver() transport.Driver {
	if d.NewDriver != nil {
		return d.NewDriver()
	}
	return transport.NewSFTPDriver(0)
}

// Send stages each pending group into a scratch directory and runs a
// Send Worker against dest. Entries of a group are marked done or
// failed from the worker's exit code; a group-level failure finalizes
// that group and continues with the next (spec.md §4.5 failure
// semantics).
func (d *DirectSender) Send(ctx context.Context, dest Destination, order []uint64, groups map[uint64][]*Entry, limit *limitCounter) (Summary, error) {
	var s Summary

	for _, jobID := range order {
		entries := groups[jobID]

		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		if limit != nil && limit.reached() {
			s.LimitReached = true
			s.Limit = limit.limit
			return s, nil
		}

		stagingDir, staged := d.stageGroup(jobID, entries, limit)
		if len(staged) == 0 {
			continue
		}

		cfg := dest.Transport
		cfg.Host = dest.Host
		cfg.Port = dest.Port
		cfg.Directory = dest.Directory
		cfg.LockPolicy = dest.LockPolicy
		cfg.TransferMode = dest.TransferMode

		w := worker.New(worker.Descriptor{
			JobID:        jobID,
			HostAlias:    dest.Host,
			HostSlot:     d.HostSlot,
			Credentials:  transport.Credentials{User: dest.User, Password: dest.Credential},
			Destination:  dest.Directory,
			LockPolicy:   dest.LockPolicy,
			TransferMode: dest.TransferMode,
			BlockSize:    dest.BlockSize,
			Priority:     worker.NoPriority,
		}, d.driver(), cfg)
		w.HSA = d.HSA
		w.ArchiveRoot = d.ArchiveRoot
		if d.Logger != nil {
			w.Logger = d.Logger
		}

		code, err := w.Run(ctx, stagingDir)
		if code == worker.TransferSuccess || code == worker.NoFilesToSend {
			for _, e := range staged {
				e.Status = StatusDone
				s.Resent++
				if limit != nil {
					limit.recordDelivery(false)
				}
			}
		} else {
			if d.Logger != nil {
				d.Logger.Errorf("direct send of job %d failed: %s: %v", jobID, code, err)
			}
			for _, e := range staged {
				e.Status = StatusFailed
			}
		}
		os.RemoveAll(stagingDir)

		if limit != nil && limit.reached() {
			s.LimitReached = true
			s.Limit = limit.limit
			return s, nil
		}
	}

	return s, nil
}

// stageGroup copies a group's archived files into a scratch staging
// directory, marking entries whose archive copy cannot be staged as
// failed. Entries skipped because the limit was already reached stay
// pending. It returns the scratch directory and the entries actually
// staged into it.
func (d *DirectSender) stageGroup(jobID uint64, entries []*Entry, limit *limitCounter) (string, []*Entry) {
	dir, err := os.MkdirTemp("", fmt.Sprintf("afd_send_%d_", jobID))
	if err != nil {
		for _, e := range entries {
			e.Status = StatusFailed
		}
		return "", nil
	}

	var staged []*Entry
	for _, e := range entries {
		if limit != nil && limit.wouldReach(len(staged)) {
			break
		}
		src := filepath.Join(d.ArchiveRoot, e.ArchiveSubpath)
		dst := filepath.Join(dir, e.LocalFilename)
		if _, err := linkOrCopy(src, dst); err != nil {
			e.Status = StatusFailed
			if d.Logger != nil {
				d.Logger.Warnf("staging %s for direct send failed: %v", e.LocalFilename, err)
			}
			continue
		}
		staged = append(staged, e)
	}

	if len(staged) == 0 {
		os.RemoveAll(dir)
	}
	return dir, staged
}
