package logstore

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	mmap "github.com/edsrzf/mmap-go"
)

// IndexBuffer is the in-memory structure built at query time over one
// mapped log file (spec.md §3 IndexBuffer). The three arrays have
// equal length and are parallel: entry i describes the record whose
// filename field starts at LineOffset[i].
type IndexBuffer struct {
	LineOffset  []int64 // byte offset of the filename field
	FieldOffset []int64 // byte offset of the job_id field
	Archived    []bool
	RecordCount int
}

// mappedFile holds an open mmap for the lifetime of a query session.
// Callers must call Close when done; spec.md §4.2 requires readers to
// "re-open by filename on each query and never cache descriptors
// across queries", so a mappedFile is never retained past one query.
type mappedFile struct {
	file *os.File
	m    mmap.MMap
}

func openMapped(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		return &mappedFile{file: f, m: nil}, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("logstore: mmap %s: %w", path, err)
	}
	return &mappedFile{file: f, m: m}, nil
}

func (mf *mappedFile) bytes() []byte {
	if mf.m == nil {
		return nil
	}
	return mf.m
}

func (mf *mappedFile) Close() error {
	var err error
	if mf.m != nil {
		err = mf.m.Unmap()
	}
	if cerr := mf.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// lineEntry is one well-formed record found while scanning the file
// for line boundaries and timestamps — the intermediate structure this
// rendition uses in place of the source's direct binary search over
// raw bytes (see indexBuild doc comment for why).
type lineEntry struct {
	start int64
	ts    int64
}

// scanLines walks data once, recording the start offset and parsed
// timestamp of every complete (newline-terminated) line. A final
// partial line with no trailing '\n' is discarded, matching spec.md
// §4.2: "readers tolerate a trailing partial line only at end-of-file
// and discard it."
func scanLines(data []byte) []lineEntry {
	var entries []lineEntry
	n := int64(len(data))
	var i int64
	for i < n {
		lineStart := i
		j := i
		for j < n && data[j] != '\n' {
			j++
		}
		if j >= n {
			break // trailing partial line, discarded
		}
		if ts, ok := parseTimestampBytes(data[lineStart:j]); ok {
			entries = append(entries, lineEntry{start: lineStart, ts: ts})
		}
		i = j + 1
	}
	return entries
}

func parseTimestampBytes(line []byte) (int64, bool) {
	if len(line) < TimestampWidth {
		return 0, false
	}
	ts, err := strconv.ParseInt(string(line[:TimestampWidth]), 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// EarliestLatest returns the timestamp of the first and last
// well-formed records in path, for the coarse file-level pruning
// spec.md §3 describes ("A file's modification time bounds its
// content's timestamp range"). It returns ok=false for an empty or
// all-partial-line file.
func EarliestLatest(path string) (earliest, latest int64, ok bool, err error) {
	mf, err := openMapped(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	defer mf.Close()
	data := mf.bytes()
	entries := scanLines(data)
	if len(entries) == 0 {
		return 0, 0, false, nil
	}
	return entries[0].ts, entries[len(entries)-1].ts, true, nil
}

// fieldOffsets returns the start offsets, within line, of every
// space-separated field beginning at byte offset `from`.
func fieldOffsets(line []byte, from int) []int {
	var offs []int
	i := from
	n := len(line)
	for i < n {
		for i < n && line[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		offs = append(offs, i)
		for i < n && line[i] != ' ' {
			i++
		}
	}
	return offs
}

// recordFieldOffsets locates the filename-field offset and job_id
// -field offset within one complete record line, plus whether it
// carries an archive_subpath, following the same field progression as
// DecodeRecord (record.go).
func recordFieldOffsets(lineStart int64, line []byte) (filenameOffset, jobIDOffset int64, archived bool, ok bool) {
	const prefix = TimestampWidth + 1 + HostAliasWidth + 1 + 1 + 1
	if len(line) <= prefix {
		return 0, 0, false, false
	}
	offs := fieldOffsets(line, prefix)
	if len(offs) == 0 {
		return 0, 0, false, false
	}
	filenameOffset = lineStart + int64(offs[0])
	idx := 1
	if idx < len(offs) && line[offs[idx]] == '/' {
		idx++ // remote filename field
	}
	jobIDIdx := idx + 2 // size, duration, then job_id
	if jobIDIdx >= len(offs) {
		return 0, 0, false, false
	}
	jobIDOffset = lineStart + int64(offs[jobIDIdx])
	archived = jobIDIdx+1 < len(offs)
	return filenameOffset, jobIDOffset, archived, true
}

// buildIndexChunkSize matches spec.md §4.2 step 2's "extending three
// parallel arrays ... in chunks (e.g. 1000 entries per reallocation)";
// Go's append already amortizes growth this way, so this constant only
// documents the intended growth granularity via the initial capacity
// hint passed to make().
const buildIndexChunkSize = 1000

// buildIndex scans data for every complete record whose timestamp
// falls in [startTime, endTime], using a binary search over the
// pre-scanned line/timestamp array to locate the window's anchors
// (spec.md §4.2 step 1) before the linear per-record pass (step 2).
//
// The source locates the window anchors by probing the raw byte
// buffer directly with a binary search that re-derives line
// boundaries at each probe. This rendition instead scans the file
// once up front into a sorted (start, timestamp) array and binary
// -searches that array with sort.Search — asymptotically the same
// "narrow to a window, then scan linearly" shape, and considerably
// easier to get right without being able to execute the result.
func buildIndex(data []byte, startTime, endTime int64) *IndexBuffer {
	entries := scanLines(data)
	lo := sort.Search(len(entries), func(i int) bool { return entries[i].ts >= startTime })
	hi := sort.Search(len(entries), func(i int) bool { return entries[i].ts > endTime })

	idx := &IndexBuffer{
		LineOffset:  make([]int64, 0, buildIndexChunkSize),
		FieldOffset: make([]int64, 0, buildIndexChunkSize),
		Archived:    make([]bool, 0, buildIndexChunkSize),
	}
	for i := lo; i < hi; i++ {
		start := entries[i].start
		end := int64(len(data))
		for j := start; j < int64(len(data)); j++ {
			if data[j] == '\n' {
				end = j
				break
			}
		}
		line := data[start:end]
		filenameOff, jobIDOff, archived, ok := recordFieldOffsets(start, line)
		if !ok {
			continue
		}
		idx.LineOffset = append(idx.LineOffset, filenameOff)
		idx.FieldOffset = append(idx.FieldOffset, jobIDOff)
		idx.Archived = append(idx.Archived, archived)
		idx.RecordCount++
	}
	return idx
}
