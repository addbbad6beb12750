package jobid

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// readDirectoryMap decodes the Directory Name Map file: the same
// "header word giving count, followed by count fixed-size records"
// layout as the Job Identity Map (spec.md §6: "Directory Name file is
// analogous."), but each record is just a (dir_id uint32, name
// fixed-width) pair. A missing file is treated as an empty map rather
// than an error, since a freshly initialized AFD instance may not
// have any directories registered yet.
func readDirectoryMap(path string) (map[uint32]string, error) {
	out := make(map[uint32]string)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobid: read directory map %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return out, nil
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("jobid: mmap %s: %w", path, err)
	}
	defer data.Unmap()
	if len(data) < headerWidth {
		return nil, fmt.Errorf("jobid: directory map shorter than header")
	}
	count := binary.LittleEndian.Uint32(data[:headerWidth])
	const recWidth = 4 + directoryWidth
	offset := headerWidth
	for i := uint32(0); i < count; i++ {
		if offset+recWidth > len(data) {
			return nil, fmt.Errorf("jobid: truncated directory record %d", i)
		}
		dirID := binary.LittleEndian.Uint32(data[offset : offset+4])
		name := decodeFixedString(data[offset+4 : offset+recWidth])
		out[dirID] = name
		offset += recWidth
	}
	return out, nil
}

// EncodeDirectoryMap writes names to path in the format
// readDirectoryMap expects.
func EncodeDirectoryMap(path string, names map[uint32]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jobid: create %s: %w", path, err)
	}
	defer f.Close()

	var header [headerWidth]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(names)))
	if _, err := f.Write(header[:]); err != nil {
		return err
	}

	const recWidth = 4 + directoryWidth
	for dirID, name := range names {
		if len(name) >= directoryWidth {
			return fmt.Errorf("jobid: directory name %q exceeds fixed width %d", name, directoryWidth)
		}
		rec := make([]byte, recWidth)
		binary.LittleEndian.PutUint32(rec[:4], dirID)
		copy(rec[4:], name)
		if _, err := f.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
