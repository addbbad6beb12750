package worker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logstore"
)

// transferAll drives the TRANSFERRING state for every queued file,
// returning the ExitCode/error the caller should fail with on the
// first unrecoverable error, plus how many files/bytes were actually
// delivered before that point.
func (w *Worker) transferAll(ctx context.Context, slot *hsa.Slot, files []stagingFile, stagingDir string) (ExitCode, int, int64, error) {
	var identity jobid.JobIdentity
	if w.Directories != nil {
		identity, _ = w.Directories.Get(w.Descriptor.JobID)
	}
	user := identity.Recipient.User

	var dupFlags jobid.DupCheckFlags
	var dupTimeout time.Duration
	dupCheckEnabled := false
	for _, opt := range identity.SendOptions {
		if opt.Kind == jobid.OptionDupCheck {
			dupCheckEnabled = true
			dupFlags = opt.DupCheckFlags
			dupTimeout = time.Duration(opt.DupCheckTimeout) * time.Second
		}
	}

	var sent int
	var bytesSent int64

	for _, f := range files {
		code, delivered, n, err := w.transferOne(ctx, slot, f, stagingDir, identity, user, dupCheckEnabled, dupFlags, dupTimeout)
		if err != nil {
			return code, sent, bytesSent, err
		}
		if delivered {
			sent++
			bytesSent += n
		}
	}
	return TransferSuccess, sent, bytesSent, nil
}

func (w *Worker) transferOne(
	ctx context.Context,
	slot *hsa.Slot,
	f stagingFile,
	stagingDir string,
	identity jobid.JobIdentity,
	user string,
	dupCheckEnabled bool,
	dupFlags jobid.DupCheckFlags,
	dupTimeout time.Duration,
) (code ExitCode, delivered bool, bytesSent int64, err error) {
	logger := w.Logger.With("file", f.Name, "job_id", w.Descriptor.JobID)
	start := time.Now()

	if err := slot.SetFileSizeInUse(uint64(f.Size)); err != nil {
		return AllocError, false, 0, err
	}
	if err := slot.SetFileNameInUse(f.Name); err != nil {
		return AllocError, false, 0, err
	}

	local, err := os.Open(f.Path)
	if err != nil {
		return OpenLocalError, false, 0, err
	}
	defer local.Close()

	var contentHash string
	if dupCheckEnabled && w.DupCache != nil && dupFlags == jobid.DupCheckContentHash {
		hash, herr := hashFile(f.Path)
		if herr != nil {
			return ReadLocalError, false, 0, herr
		}
		contentHash = hash
	}

	if dupCheckEnabled && w.DupCache != nil {
		seen, serr := w.DupCache.Seen(ctx, w.Descriptor.JobID, f.Name, f.Size, contentHash, dupFlags)
		if serr != nil {
			logger.Warnf("dupcheck lookup failed, sending anyway: %v", serr)
		} else if seen {
			logger.Info("skipping duplicate delivery per dupcheck option")
			_ = os.Remove(f.Path)
			return TransferSuccess, false, 0, nil
		}
	}

	header := w.Descriptor.HeaderFlag
	var body io.Reader = local
	if header {
		body = io.MultiReader(bytes.NewReader(wmoHeader(f.Name)), local, bytes.NewReader(wmoTrailer()))
	}

	size := f.Size
	if header {
		size += int64(len(wmoHeader(f.Name)) + len(wmoTrailer()))
	}

	handle, err := w.Driver.OpenFile(ctx, f.Name, size, w.Descriptor.Chmod)
	if err != nil {
		return classifyOutcome(err, OpenRemoteError), false, 0, err
	}

	block := make([]byte, blockSizeOrDefault(w.Descriptor.BlockSize))
	var done int64
	for {
		n, rerr := body.Read(block)
		if n > 0 {
			if werr := w.Driver.WriteChunk(ctx, handle, block[:n]); werr != nil {
				return classifyOutcome(werr, WriteRemoteError), false, 0, werr
			}
			done += int64(n)
			if err := slot.AddFileSizeInUseDone(uint64(n)); err != nil {
				return AllocError, false, 0, err
			}
			if err := slot.AddBytesSend(uint64(n)); err != nil {
				return AllocError, false, 0, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ReadLocalError, false, 0, rerr
		}
	}

	if !header && done < f.Size {
		logger.Warnf("local read returned %d of %d logged bytes (source likely did not use atomic rename)", done, f.Size)
	}

	if err := w.Driver.CloseFile(ctx, handle); err != nil {
		return classifyOutcome(err, CloseRemoteError), false, 0, err
	}

	record := logstore.LogRecord{
		Timestamp:       time.Now().Unix(),
		HostAlias:       w.Descriptor.HostAlias,
		Protocol:        logstore.ProtocolSCP,
		FilenameLocal:   f.Name,
		FileSize:        f.Size,
		TransferSeconds: time.Since(start).Seconds(),
		JobID:           w.Descriptor.JobID,
	}

	if w.Descriptor.ArchiveTime > 0 {
		subpath, _, aerr := archiveFile(w.ArchiveRoot, w.Descriptor.HostAlias, user, w.Descriptor.Priority, w.Descriptor.JobID, f.Path, f.Name)
		switch {
		case aerr == nil:
			record.ArchiveSubpath = subpath
			if w.Mirror != nil {
				if _, merr := w.Mirror.Put(ctx, f.Path, subpath, f.Name); merr != nil {
					logger.Warnf("archive mirror upload failed: %v", merr)
				}
			}
		case errors.Is(aerr, errFileVanished):
			logger.Warnf("file vanished before archiving, skipping this file only: %v", aerr)
			return TransferSuccess, true, done, nil
		default:
			logger.Warnf("archive failed, delivering without archive_subpath: %v", aerr)
		}
	}

	local.Close()
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to unlink staging file after delivery: %v", err)
	}

	if w.Store != nil {
		if err := w.Store.Append(record); err != nil {
			logger.Warnf("failed to append log record: %v", err)
		}
	}

	if dupCheckEnabled && w.DupCache != nil {
		if err := w.DupCache.Remember(ctx, w.Descriptor.JobID, f.Name, f.Size, contentHash, dupFlags, dupTimeout); err != nil {
			logger.Warnf("dupcheck remember failed: %v", err)
		}
	}

	if err := slot.AdvanceFileDone(uint64(f.Size)); err != nil {
		return AllocError, false, 0, err
	}

	if slot.ErrorCounter() != 0 {
		if err := slot.ResetErrorCounter(); err != nil {
			logger.Warnf("failed to reset error_counter after success: %v", err)
		}
		if w.WakeupFifo != "" {
			if err := fifo.PostWakeup(w.WakeupFifo); err != nil {
				logger.Warnf("failed to post scheduler wake-up: %v", err)
			}
		}
		if slot.HostStatus()&hsa.FlagAutoPauseQueue != 0 {
			if err := slot.SetHostStatusFlag(hsa.FlagAutoPauseQueue, false); err != nil {
				logger.Warnf("failed to clear auto_pause_queue: %v", err)
			}
		}
	}

	return TransferSuccess, true, done, nil
}

// burstCheck implements spec.md §4.4's BURST_CHECK state: under a
// write-lock on the slot's job_id byte range, re-scan the staging
// directory for newly arrived files belonging to the same job. If any
// appeared, bump burst_counter and report "stay on this connection".
func (w *Worker) burstCheck(slot *hsa.Slot, stagingDir string, burstCounter *uint64) (more bool, err error) {
	err = slot.WithJobIDLock(func() error {
		entries, rerr := os.ReadDir(stagingDir)
		if rerr != nil {
			if os.IsNotExist(rerr) {
				return nil
			}
			return rerr
		}
		hasFiles := false
		for _, e := range entries {
			if !e.IsDir() {
				hasFiles = true
				break
			}
		}
		if !hasFiles {
			return nil
		}
		*burstCounter++
		more = true
		return slot.SetConnectStatus(hsa.StatusBursting)
	})
	return more, err
}

func blockSizeOrDefault(n int) int {
	if n <= 0 {
		return 32 * 1024
	}
	return n
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("worker: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
