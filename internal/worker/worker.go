// Package worker implements the Send Worker (spec.md §4.4): a
// one-shot state machine that drains a staging directory for a single
// job over a transport.Driver, bookkeeping every step into a Host
// Status Array slot and appending one logstore.LogRecord per
// delivered file.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/hfs/afd-sub007/internal/archivemirror"
	"github.com/hfs/afd-sub007/internal/dupcheck"
	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/logstore"
	"github.com/hfs/afd-sub007/internal/transport"
)

// ExitCode is the exhaustive, stable exit status set from spec.md
// §4.4.
type ExitCode int

const (
	TransferSuccess ExitCode = iota
	NoFilesToSend
	ConnectError
	TimeoutError
	OpenRemoteError
	OpenLocalError
	WriteRemoteError
	ReadLocalError
	CloseRemoteError
	AllocError
	GotKilled
	IsFaultyVar
)

func (c ExitCode) String() string {
	switch c {
	case TransferSuccess:
		return "TRANSFER_SUCCESS"
	case NoFilesToSend:
		return "NO_FILES_TO_SEND"
	case ConnectError:
		return "CONNECT_ERROR"
	case TimeoutError:
		return "TIMEOUT_ERROR"
	case OpenRemoteError:
		return "OPEN_REMOTE_ERROR"
	case OpenLocalError:
		return "OPEN_LOCAL_ERROR"
	case WriteRemoteError:
		return "WRITE_REMOTE_ERROR"
	case ReadLocalError:
		return "READ_LOCAL_ERROR"
	case CloseRemoteError:
		return "CLOSE_REMOTE_ERROR"
	case AllocError:
		return "ALLOC_ERROR"
	case GotKilled:
		return "GOT_KILLED"
	case IsFaultyVar:
		return "IS_FAULTY_VAR"
	default:
		return "UNKNOWN"
	}
}

// NoPriority marks a Descriptor/staging-directory name as carrying no
// priority prefix (spec.md §6 "the priority prefix is omitted when the
// sender uses NO_PRIORITY").
const NoPriority byte = 0

// Descriptor is the per-run input the scheduler hands a Send Worker
// (spec.md §4.4).
type Descriptor struct {
	JobID        uint64
	HostAlias    string
	HostSlot     int
	Credentials  transport.Credentials
	Destination  string
	ModeFlags    uint32
	LockPolicy   string
	TransferMode string
	Chmod        uint32
	AgeLimit     time.Duration
	ArchiveTime  time.Duration // 0 means "do not archive"
	HeaderFlag   bool          // spec.md §4.4 "filename-is-header" flag
	BlockSize    int
	Priority     byte
}

// Worker drives one Descriptor's staging directory to completion.
type Worker struct {
	Descriptor   Descriptor
	Driver       transport.Driver
	TransportCfg transport.Config
	HSA          *hsa.Array
	Store        *logstore.Store
	Directories  *jobid.Map
	ArchiveRoot  string
	Mirror       *archivemirror.Mirror
	DupCache     dupcheck.Cache
	Logger       logging.Logger
	RunID        string

	// WakeupFifo, when set, receives the scheduler wake-up byte after
	// a success that cleared a non-zero error_counter.
	WakeupFifo string

	// TransferLog, when set, receives the operator-visible summary and
	// error lines alongside the structured log.
	TransferLog *fifo.TransferLog
}

// New constructs a Worker, filling in a fresh RunID if none is set.
func New(d Descriptor, driver transport.Driver, cfg transport.Config) *Worker {
	return &Worker{
		Descriptor:   d,
		Driver:       driver,
		TransportCfg: cfg,
		Logger:       logging.NewLogger(),
		RunID:        uuid.NewString(),
	}
}

// Run executes the full INIT..EXIT state machine against stagingDir,
// returning the worker's exit code. Once the HSA slot has been
// obtained, a non-success ExitCode is always paired with the slot reset
// to a well-defined faulty state before Run returns; a failure to list
// the staging directory or to obtain the slot returns before any slot
// state is touched.
func (w *Worker) Run(ctx context.Context, stagingDir string) (ExitCode, error) {
	logger := w.Logger.With("run_id", w.RunID, "job_id", w.Descriptor.JobID, "host", w.Descriptor.HostAlias)

	// INIT
	files, err := listStagingFiles(stagingDir, w.Descriptor.AgeLimit)
	if err != nil {
		return w.fail(AllocError, err)
	}
	if len(files) == 0 {
		if err := os.Remove(stagingDir); err != nil && !os.IsNotExist(err) {
			logger.Warnf("failed to clean empty staging directory %s: %v", stagingDir, err)
		}
		return NoFilesToSend, nil
	}

	slot, err := w.HSA.Slot(w.Descriptor.HostSlot)
	if err != nil {
		return w.fail(AllocError, err)
	}

	// CONNECTING
	if err := w.Driver.Connect(ctx, w.TransportCfg); err != nil {
		w.markFaulty(slot)
		return w.classifyConnectFailure(err)
	}
	if err := slot.SetConnectStatus(hsa.StatusActive); err != nil {
		w.markFaulty(slot)
		return w.fail(AllocError, err)
	}
	if err := slot.IncrementConnections(); err != nil {
		w.markFaulty(slot)
		return w.fail(AllocError, err)
	}

	// AUTHENTICATING
	if w.Descriptor.Credentials.User != "" || w.Descriptor.Credentials.Password != "" {
		if err := w.Driver.Authenticate(ctx, w.Descriptor.Credentials); err != nil {
			w.markFaulty(slot)
			return w.fail(classifyOutcome(err, ConnectError), err)
		}
	}

	if err := w.Driver.PrepareSession(ctx, w.Descriptor.TransferMode, w.Descriptor.Destination, w.Descriptor.LockPolicy); err != nil {
		w.markFaulty(slot)
		return w.fail(classifyOutcome(err, OpenRemoteError), err)
	}

	burstCounter := uint64(0)
	totalBytes := int64(0)
	totalFiles := 0

	for {
		// TRANSFERRING
		code, sent, bytesSent, err := w.transferAll(ctx, slot, files, stagingDir)
		totalFiles += sent
		totalBytes += bytesSent
		if err != nil {
			w.markFaulty(slot)
			return w.fail(code, err)
		}

		// BURST_CHECK
		more, err := w.burstCheck(slot, stagingDir, &burstCounter)
		if err != nil {
			w.markFaulty(slot)
			return w.fail(AllocError, err)
		}
		if !more {
			break
		}
		files, err = listStagingFiles(stagingDir, w.Descriptor.AgeLimit)
		if err != nil {
			w.markFaulty(slot)
			return w.fail(AllocError, err)
		}
		if len(files) == 0 {
			break
		}
	}

	// CLOSING
	if err := w.Driver.Quit(ctx); err != nil {
		logger.Warnf("quit reported a non-fatal error: %v", err)
	}
	if err := slot.SetConnectStatus(hsa.StatusDisconnected); err != nil {
		logger.Warnf("failed to reset connect_status on close: %v", err)
	}
	removeIfEmpty(stagingDir)

	// EXIT
	summary := summaryLine(w.Descriptor.HostAlias, w.Descriptor.HostSlot, totalBytes, totalFiles, burstCounter)
	logger.Info(summary)
	if w.TransferLog != nil {
		_ = w.TransferLog.Log(fifo.SignInfo, "%s", summary)
	}

	return TransferSuccess, nil
}

func (w *Worker) classifyConnectFailure(err error) (ExitCode, error) {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Outcome == transport.OutcomeTimeout {
		return w.fail(TimeoutError, err)
	}
	return w.fail(ConnectError, err)
}

func classifyOutcome(err error, fallback ExitCode) ExitCode {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return fallback
	}
	switch terr.Outcome {
	case transport.OutcomeTimeout:
		return TimeoutError
	case transport.OutcomeOpenRemoteError:
		return OpenRemoteError
	case transport.OutcomeWriteRemoteError:
		return WriteRemoteError
	case transport.OutcomeCloseRemoteError:
		return CloseRemoteError
	default:
		return fallback
	}
}

func (w *Worker) fail(code ExitCode, err error) (ExitCode, error) {
	if w.TransferLog != nil {
		_ = w.TransferLog.Log(fifo.SignError, "%s[%d]: %s: %v",
			w.Descriptor.HostAlias, w.Descriptor.HostSlot, code, err)
	}
	return code, fmt.Errorf("worker: %s: %w", code, err)
}

// markFaulty resets the slot to the "faulty" state spec.md §4.4
// requires on every non-success exit path.
func (w *Worker) markFaulty(slot *hsa.Slot) {
	_ = slot.SetConnectStatus(hsa.StatusNotWorking)
	_ = slot.IncrementErrorCounter()
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	if len(entries) == 0 {
		_ = os.Remove(dir)
	}
}

func summaryLine(host string, slot int, bytesSent int64, files int, burstCounter uint64) string {
	base := fmt.Sprintf("%s[%d]: %d Bytes send in %d file(s).", host, slot, bytesSent, files)
	switch {
	case burstCounter == 1:
		return base + " [BURST]"
	case burstCounter > 1:
		return base + fmt.Sprintf(" [BURST * %d]", burstCounter)
	default:
		return base
	}
}
