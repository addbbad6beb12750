package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"
)

// MaxMsgPerSec bounds the wraparound of the per-process archive/reinject
// counter, matching the per-second counter spec.md §4.5 describes for
// the resend pipeline's destination naming; the archive step reuses
// the same scheme for its own path component.
const MaxMsgPerSec = 10000

var archiveCounter uint32

func nextArchiveCounter() uint32 {
	return atomic.AddUint32(&archiveCounter, 1) % MaxMsgPerSec
}

// errFileVanished marks a file that disappeared from staging between
// being queued and being archived (spec.md §4.4: "on ENOENT the file
// has vanished — abort this file only").
var errFileVanished = errors.New("worker: file vanished before archiving")

// archiveFile links (falling back to copy on EEXIST or EXDEV)
// localPath into
// <archiveRoot>/<host>/<user>/<counter>/<priority>_<timestamp>_<counter>_<jobID>/<filename>,
// per spec.md §4.4's archive step. subpath is relative to archiveRoot,
// suitable for LogRecord.ArchiveSubpath.
func archiveFile(archiveRoot, host, user string, priority byte, jobID uint64, localPath, filename string) (subpath string, overwrite bool, err error) {
	counter := nextArchiveCounter()
	leaf := fmt.Sprintf("%d_%d_%d_%d", priority, time.Now().Unix(), counter, jobID)
	dir := filepath.Join(archiveRoot, host, user, strconv.FormatUint(uint64(counter), 10), leaf)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("worker: archive mkdir %s: %w", dir, err)
	}
	dest := filepath.Join(dir, filename)

	linkErr := os.Link(localPath, dest)
	switch {
	case linkErr == nil:
		// linked, nothing further to do
	case errors.Is(linkErr, syscall.EEXIST):
		overwrite = true
		if err := copyFile(localPath, dest); err != nil {
			return "", overwrite, fmt.Errorf("worker: archive copy (EEXIST fallback) %s: %w", dest, err)
		}
	case errors.Is(linkErr, syscall.EXDEV):
		if err := copyFile(localPath, dest); err != nil {
			return "", false, fmt.Errorf("worker: archive copy (EXDEV fallback) %s: %w", dest, err)
		}
	case errors.Is(linkErr, syscall.ENOENT):
		return "", false, errFileVanished
	default:
		return "", false, fmt.Errorf("worker: archive link %s -> %s: %w", localPath, dest, linkErr)
	}

	rel, relErr := filepath.Rel(archiveRoot, dest)
	if relErr != nil {
		rel = dest
	}
	return rel, overwrite, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
