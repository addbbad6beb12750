// Package hsa implements the Host Status Array: a memory-mapped,
// fixed-layout file of per-host slots holding liveness, per-slot job
// status, error counters, and cumulative byte counters (spec.md §3
// HostStatusArray slot, §5). Every component that advances delivery
// mutates a slot under the documented byte-range locks.
package hsa

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// ConnectStatus enumerates a slot's connection state (spec.md §3).
type ConnectStatus uint32

const (
	StatusDisconnected ConnectStatus = iota
	StatusConnecting
	StatusActive
	StatusBursting
	StatusClosing
	StatusNotWorking
)

// HostStatusFlag bits for the slot's host_status bit field.
type HostStatusFlag uint32

const (
	FlagAutoPauseQueue HostStatusFlag = 1 << iota
)

// slotLayout describes the fixed byte offsets of every field inside
// one slot record, following spec.md §3's field list in declaration
// order. Every field occupies 8 bytes except the fixed-width strings
// FileNameInUse and HostAlias, which keeps every lockable field at a
// fixed, easily-addressed offset for the byte-range locks below.
const (
	offConnectStatus       = 0
	offNoOfFiles           = 8
	offNoOfFilesDone       = 16
	offFileSize            = 24
	offFileSizeDone        = 32
	offFileSizeInUse       = 40
	offFileSizeInUseDone   = 48
	offFileNameInUse       = 56 // fixed-width string field
	fileNameInUseWidth     = 256
	offJobID               = offFileNameInUse + fileNameInUseWidth
	offBurstCounter        = offJobID + 8
	offErrorCounter        = offBurstCounter + 8
	offConnections         = offErrorCounter + 8
	offBytesSend           = offConnections + 8
	offTotalFileCounter    = offBytesSend + 8
	offTotalFileSize       = offTotalFileCounter + 8
	offFileCounterDone     = offTotalFileSize + 8
	offHostStatus          = offFileCounterDone + 8
	offHostAlias           = offHostStatus + 8
	hostAliasWidth         = 16
	SlotSize               = offHostAlias + hostAliasWidth
)

// Array is a memory-mapped Host Status Array of fixed-size slots.
type Array struct {
	file    *os.File
	mapping mmap.MMap
	slots   int
}

// Create allocates a new HSA file at path with room for n slots, all
// zeroed (ConnectStatus defaults to StatusDisconnected).
func Create(path string, n int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hsa: create %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Truncate(int64(n * SlotSize)); err != nil {
		return fmt.Errorf("hsa: truncate %s: %w", path, err)
	}
	return nil
}

// Open memory-maps an existing HSA file for read-write access.
func Open(path string) (*Array, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("hsa: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size()%SlotSize != 0 {
		f.Close()
		return nil, fmt.Errorf("hsa: file size %d not a multiple of slot size %d", info.Size(), SlotSize)
	}
	n := int(info.Size() / SlotSize)
	if n == 0 {
		f.Close()
		return &Array{file: f, slots: 0}, nil
	}
	mapping, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hsa: mmap %s: %w", path, err)
	}
	return &Array{file: f, mapping: mapping, slots: n}, nil
}

// Close unmaps and closes the underlying file.
func (a *Array) Close() error {
	var err error
	if a.mapping != nil {
		err = a.mapping.Unmap()
	}
	if a.file != nil {
		if cerr := a.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NumSlots returns the number of slots in the array.
func (a *Array) NumSlots() int { return a.slots }

// Slot returns a handle to slot index i. It does not copy data; reads
// and writes go through byte-range locked accessors below.
func (a *Array) Slot(i int) (*Slot, error) {
	if i < 0 || i >= a.slots {
		return nil, fmt.Errorf("hsa: slot index %d out of range [0,%d)", i, a.slots)
	}
	return &Slot{
		data: a.mapping[i*SlotSize : (i+1)*SlotSize],
		file: a.file,
		base: int64(i * SlotSize),
	}, nil
}

func getU64(b []byte, off int) uint64  { return binary.LittleEndian.Uint64(b[off : off+8]) }
func setU64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }
func getU32(b []byte, off int) uint32  { return binary.LittleEndian.Uint32(b[off : off+4]) }
func setU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }
