package hsa

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// Slot is a handle onto one fixed-size record within a mapped Array.
// Spec.md §5: "a slot has a single owning worker process for the
// duration of one send session; other processes may read under a
// read-lock and only the controller may mutate error_counter and
// host-wide counters under a write-lock on the designated byte
// range." Every write accessor below except SetHostAlias takes the
// narrowest lock that covers only the field(s) it touches; the read
// accessors take no lock.
type Slot struct {
	data []byte
	file fileLocker
	base int64
}

// fileLocker is the subset of *os.File byte-range locking needs;
// factored out so tests can fake it without a real descriptor.
type fileLocker interface {
	Fd() uintptr
}

func (s *Slot) lockRange(off, length int, write bool) (unlock func() error, err error) {
	fd := int(s.file.Fd())
	lt := unix.F_RDLCK
	if write {
		lt = unix.F_WRLCK
	}
	flock := unix.Flock_t{
		Type:   int16(lt),
		Whence: int16(unix.SEEK_SET),
		Start:  s.base + int64(off),
		Len:    int64(length),
	}
	if err := unix.FcntlFlock(uintptr(fd), unix.F_SETLKW, &flock); err != nil {
		return nil, fmt.Errorf("hsa: lock byte range [%d,%d): %w", s.base+int64(off), s.base+int64(off+length), err)
	}
	return func() error {
		unlockFlock := unix.Flock_t{
			Type:   int16(unix.F_UNLCK),
			Whence: int16(unix.SEEK_SET),
			Start:  s.base + int64(off),
			Len:    int64(length),
		}
		return unix.FcntlFlock(uintptr(fd), unix.F_SETLK, &unlockFlock)
	}, nil
}

// WithReadLock runs fn while holding a read lock spanning the whole
// slot. The lock is always released via defer before returning, so
// there is no code path that can exit while still holding it
// (resolving, by construction, the source's noted risk of a read-lock
// held across an unexpected exit).
func (s *Slot) WithReadLock(fn func() error) error {
	unlock, err := s.lockRange(0, SlotSize, false)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// WithWriteLock runs fn while holding a write lock over [off, off+length)
// within the slot, for the fine-grained field mutations spec.md §4.4/§5
// call out (job_id, connections, error_counter).
func (s *Slot) WithWriteLock(off, length int, fn func() error) error {
	unlock, err := s.lockRange(off, length, true)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// --- Read accessors (caller should wrap with WithReadLock for a
// cross-field-consistent snapshot; single-field reads are already
// atomic at the mmap level on every platform Go supports). ---

func (s *Slot) ConnectStatus() ConnectStatus { return ConnectStatus(getU32(s.data, offConnectStatus)) }
func (s *Slot) NoOfFiles() uint64           { return getU64(s.data, offNoOfFiles) }
func (s *Slot) NoOfFilesDone() uint64       { return getU64(s.data, offNoOfFilesDone) }
func (s *Slot) FileSize() uint64            { return getU64(s.data, offFileSize) }
func (s *Slot) FileSizeDone() uint64        { return getU64(s.data, offFileSizeDone) }
func (s *Slot) FileSizeInUse() uint64       { return getU64(s.data, offFileSizeInUse) }
func (s *Slot) FileSizeInUseDone() uint64   { return getU64(s.data, offFileSizeInUseDone) }
func (s *Slot) JobID() uint64               { return getU64(s.data, offJobID) }
func (s *Slot) BurstCounter() uint64        { return getU64(s.data, offBurstCounter) }
func (s *Slot) ErrorCounter() uint64        { return getU64(s.data, offErrorCounter) }
func (s *Slot) Connections() uint64         { return getU64(s.data, offConnections) }
func (s *Slot) BytesSend() uint64           { return getU64(s.data, offBytesSend) }
func (s *Slot) TotalFileCounter() uint64    { return getU64(s.data, offTotalFileCounter) }
func (s *Slot) TotalFileSize() uint64       { return getU64(s.data, offTotalFileSize) }
func (s *Slot) FileCounterDone() uint64     { return getU64(s.data, offFileCounterDone) }
func (s *Slot) HostStatus() HostStatusFlag  { return HostStatusFlag(getU32(s.data, offHostStatus)) }

func (s *Slot) FileNameInUse() string {
	return cString(s.data[offFileNameInUse : offFileNameInUse+fileNameInUseWidth])
}

func (s *Slot) HostAlias() string {
	return cString(s.data[offHostAlias : offHostAlias+hostAliasWidth])
}

// --- Write accessors; each except SetHostAlias acquires the narrowest byte-range write
// lock that covers the field(s) it touches, per spec.md §5's
// "fine-grained byte-range write locks (error_counter, job_id,
// connections, per-host totals)". ---

func (s *Slot) SetConnectStatus(v ConnectStatus) error {
	return s.WithWriteLock(offConnectStatus, 8, func() error {
		setU32(s.data, offConnectStatus, uint32(v))
		return nil
	})
}

// WithJobIDLock runs fn while holding a write lock over the job_id
// byte range, for a Send Worker's BURST_CHECK state (spec.md §4.4:
// "under a write-lock on the slot's job_id byte range, re-scan the
// staging directory").
func (s *Slot) WithJobIDLock(fn func() error) error {
	return s.WithWriteLock(offJobID, 8, fn)
}

func (s *Slot) SetJobID(v uint64) error {
	return s.WithWriteLock(offJobID, 8, func() error {
		setU64(s.data, offJobID, v)
		return nil
	})
}

func (s *Slot) SetConnections(v uint64) error {
	return s.WithWriteLock(offConnections, 8, func() error {
		setU64(s.data, offConnections, v)
		return nil
	})
}

func (s *Slot) IncrementConnections() error {
	return s.WithWriteLock(offConnections, 8, func() error {
		setU64(s.data, offConnections, getU64(s.data, offConnections)+1)
		return nil
	})
}

// ResetErrorCounter resets error_counter to 0 under a write lock and
// clears FlagAutoPauseQueue — the "on success with a non-zero
// pre-existing error_counter, reset it to 0... and clear
// auto_pause_queue if set" step of spec.md §4.4's TRANSFERRING state.
func (s *Slot) ResetErrorCounter() error {
	return s.WithWriteLock(offErrorCounter, 8, func() error {
		setU64(s.data, offErrorCounter, 0)
		hostStatus := getU32(s.data, offHostStatus)
		setU32(s.data, offHostStatus, hostStatus&^uint32(FlagAutoPauseQueue))
		return nil
	})
}

func (s *Slot) IncrementErrorCounter() error {
	return s.WithWriteLock(offErrorCounter, 8, func() error {
		setU64(s.data, offErrorCounter, getU64(s.data, offErrorCounter)+1)
		return nil
	})
}

func (s *Slot) SetFileNameInUse(name string) error {
	return s.WithWriteLock(offFileNameInUse, fileNameInUseWidth, func() error {
		setCString(s.data[offFileNameInUse:offFileNameInUse+fileNameInUseWidth], name)
		return nil
	})
}

func (s *Slot) SetFileSizeInUse(v uint64) error {
	return s.WithWriteLock(offFileSizeInUse, 8, func() error {
		setU64(s.data, offFileSizeInUse, v)
		return nil
	})
}

func (s *Slot) AddFileSizeInUseDone(delta uint64) error {
	return s.WithWriteLock(offFileSizeInUseDone, 8, func() error {
		setU64(s.data, offFileSizeInUseDone, getU64(s.data, offFileSizeInUseDone)+delta)
		return nil
	})
}

func (s *Slot) AddBytesSend(delta uint64) error {
	return s.WithWriteLock(offBytesSend, 8, func() error {
		setU64(s.data, offBytesSend, getU64(s.data, offBytesSend)+delta)
		return nil
	})
}

// AdvanceFileDone increments no_of_files_done by one and decrements
// total_file_counter/total_file_size by exactly one file/its size,
// per spec.md §8's HSA counter monotonicity invariant ("total_file_counter
// / total_file_size (decremented by exactly one/one-file-size per
// successful file)").
func (s *Slot) AdvanceFileDone(fileSize uint64) error {
	if err := s.WithWriteLock(offNoOfFilesDone, 8, func() error {
		setU64(s.data, offNoOfFilesDone, getU64(s.data, offNoOfFilesDone)+1)
		return nil
	}); err != nil {
		return err
	}
	if err := s.WithWriteLock(offTotalFileCounter, 8, func() error {
		if cur := getU64(s.data, offTotalFileCounter); cur > 0 {
			setU64(s.data, offTotalFileCounter, cur-1)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := s.WithWriteLock(offTotalFileSize, 8, func() error {
		if cur := getU64(s.data, offTotalFileSize); cur >= fileSize {
			setU64(s.data, offTotalFileSize, cur-fileSize)
		}
		return nil
	}); err != nil {
		return err
	}
	return s.WithWriteLock(offFileCounterDone, 8, func() error {
		setU64(s.data, offFileCounterDone, getU64(s.data, offFileCounterDone)+1)
		return nil
	})
}

func (s *Slot) SetHostAlias(alias string) {
	setCString(s.data[offHostAlias:offHostAlias+hostAliasWidth], alias)
}

func (s *Slot) SetHostStatusFlag(flag HostStatusFlag, set bool) error {
	return s.WithWriteLock(offHostStatus, 8, func() error {
		cur := getU32(s.data, offHostStatus)
		if set {
			cur |= uint32(flag)
		} else {
			cur &^= uint32(flag)
		}
		setU32(s.data, offHostStatus, cur)
		return nil
	})
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func setCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	copy(dst, s[:n])
}
