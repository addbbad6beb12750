package logstore

import (
	"fmt"
	"os"

	"github.com/hfs/afd-sub007/internal/glob"
)

// SizeOp is the comparison operator for a Query's file-size filter,
// spec.md §4.2: "(=, <, >)".
type SizeOp byte

const (
	SizeEQ SizeOp = '='
	SizeLT SizeOp = '<'
	SizeGT SizeOp = '>'
)

// SizeFilter compares a record's file size against Value using Op.
type SizeFilter struct {
	Op    SizeOp
	Value int64
}

func (f SizeFilter) matches(size int64) bool {
	switch f.Op {
	case SizeLT:
		return size < f.Value
	case SizeGT:
		return size > f.Value
	default:
		return size == f.Value
	}
}

// JobLookup resolves a job_id to the recipient/directory/user triple
// needed to evaluate a Query's DirectoryPattern/UserPattern filters —
// the "on-the-fly job_id lookup" join spec.md §4.2 step 3 describes.
// internal/jobid implements this against the mmapped Job Identity Map.
type JobLookup interface {
	Lookup(jobID uint64) (recipient, directory, user string, ok bool)
}

// Query describes one time-windowed, optionally-filtered scan of a log
// file, spec.md §4.2.
type Query struct {
	StartTime, EndTime int64

	// ProtocolMask selects which protocols are included; bit i (1<<i)
	// corresponds to Protocol(i). A zero mask means "all protocols"
	// (spec.md's "protocol-toggle mask").
	ProtocolMask uint8

	// RecipientPattern is matched against the record's host alias; it
	// does not use Lookup.
	RecipientPattern string
	FilenamePattern  string
	SizeFilter       *SizeFilter
	DirectoryPattern string
	UserPattern      string
	Lookup           JobLookup

	// DisplayRemoteName implements the "local vs remote" display
	// toggle of spec.md §4.2 step 4.
	DisplayRemoteName bool

	// ListLimit caps the number of records emitted; 0 means unlimited
	// (spec.md §4.2 "List-limit policy").
	ListLimit int
}

func (q Query) protocolAllowed(p Protocol) bool {
	if q.ProtocolMask == 0 {
		return true
	}
	return q.ProtocolMask&(1<<uint(p)) != 0
}

// EmittedRecord is what RunQuery hands to the consumer callback for
// each surviving record (spec.md §4.2 step 4).
type EmittedRecord struct {
	Timestamp       int64
	HostAlias       string
	Protocol        Protocol
	DisplayFilename string
	FileSize        int64
	Duration        float64
	JobID           uint64
	Archived        bool
	LogFileIndex    int
	RecordPosition  int

	// LineOffset is the byte offset, within the log file at
	// LogFileIndex, where this record's line begins. A selection for
	// the Resend Pipeline (spec.md §4.5) captures (LogFileIndex,
	// LineOffset) rather than RecordPosition, since RecordPosition is
	// only an index into this query's own transient IndexBuffer and
	// does not survive past it.
	LineOffset int64
}

// Summary is the running accumulator spec.md §4.2 describes:
// "(count, bytes, duration, first_ts, last_ts)".
type Summary struct {
	Count      int
	Bytes      int64
	Duration   float64
	FirstTS    int64
	LastTS     int64
	hasAnyTime bool
}

func (s *Summary) add(r EmittedRecord) {
	s.Count++
	s.Bytes += r.FileSize
	s.Duration += r.Duration
	if !s.hasAnyTime || r.Timestamp < s.FirstTS {
		s.FirstTS = r.Timestamp
	}
	if !s.hasAnyTime || r.Timestamp > s.LastTS {
		s.LastTS = r.Timestamp
	}
	s.hasAnyTime = true
}

// ListLimitMessage is surfaced verbatim when a query stops early
// because it hit Query.ListLimit (spec.md §4.2).
func ListLimitMessage(limit int) string {
	return fmt.Sprintf("List limit (%d) reached!", limit)
}

// RunQuery streams every record in the log file at path, identified by
// logFileIndex, that falls in the query's time window and passes its
// filters, to onRecord, in file order (spec.md §8 ordering invariant).
// onRecord returning false stops the scan early (the "Stop" /
// interrupt semantics of spec.md §5); the returned string is non-empty
// only when the scan stopped because it hit Query.ListLimit.
func RunQuery(path string, logFileIndex int, q Query, onRecord func(EmittedRecord) bool) (Summary, string, error) {
	var summary Summary

	mf, err := openMapped(path)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, "", nil
		}
		return summary, "", fmt.Errorf("logstore: open %s: %w", path, err)
	}
	defer mf.Close()

	data := mf.bytes()
	if data == nil {
		return summary, "", nil
	}

	idx := buildIndex(data, q.StartTime, q.EndTime)
	emittedCount := 0
	for i := 0; i < idx.RecordCount; i++ {
		rec, lineStart, ok := decodeAt(data, idx.LineOffset[i], idx.FieldOffset[i], idx.Archived[i])
		if !ok {
			continue
		}
		if rec.Timestamp < q.StartTime || rec.Timestamp > q.EndTime {
			continue
		}
		if !q.protocolAllowed(rec.Protocol) {
			continue
		}
		if q.RecipientPattern != "" && !glob.Match(q.RecipientPattern, rec.HostAlias) {
			continue
		}
		if q.FilenamePattern != "" && !glob.Match(q.FilenamePattern, rec.FilenameLocal) {
			continue
		}
		if q.SizeFilter != nil && !q.SizeFilter.matches(rec.FileSize) {
			continue
		}
		if q.DirectoryPattern != "" {
			_, directory, _, found := lookupOrEmpty(q.Lookup, rec.JobID)
			if !found || !glob.Match(q.DirectoryPattern, directory) {
				continue
			}
		}
		if q.UserPattern != "" {
			_, _, user, found := lookupOrEmpty(q.Lookup, rec.JobID)
			if !found || !glob.Match(q.UserPattern, user) {
				continue
			}
		}

		display := rec.FilenameLocal
		if q.DisplayRemoteName && rec.FilenameRemote != "" {
			display = rec.FilenameRemote
		}

		emitted := EmittedRecord{
			Timestamp:       rec.Timestamp,
			HostAlias:       rec.HostAlias,
			Protocol:        rec.Protocol,
			DisplayFilename: display,
			FileSize:        rec.FileSize,
			Duration:        rec.TransferSeconds,
			JobID:           rec.JobID,
			Archived:        rec.Archived(),
			LogFileIndex:    logFileIndex,
			RecordPosition:  i,
			LineOffset:      lineStart,
		}
		if q.ListLimit > 0 && emittedCount >= q.ListLimit {
			return summary, ListLimitMessage(q.ListLimit), nil
		}
		emittedCount++
		summary.add(emitted)

		if !onRecord(emitted) {
			return summary, "", nil
		}
	}
	return summary, "", nil
}

func lookupOrEmpty(l JobLookup, jobID uint64) (recipient, directory, user string, ok bool) {
	if l == nil {
		return "", "", "", false
	}
	return l.Lookup(jobID)
}

// decodeAt reconstructs a full LogRecord given the filename-field and
// job_id-field offsets an IndexBuffer already located, by walking
// backward to the line start and forward to the line end, then
// delegating to DecodeRecord. This keeps the hot per-record filter
// loop free of re-scanning work the index build already did, while
// still producing a fully-decoded record for filters that need more
// than the two indexed offsets (e.g. FilenamePattern).
func decodeAt(data []byte, filenameOffset, jobIDOffset int64, archived bool) (rec LogRecord, lineStart int64, ok bool) {
	lineStart = filenameOffset
	for lineStart > 0 && data[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := filenameOffset
	n := int64(len(data))
	for lineEnd < n && data[lineEnd] != '\n' {
		lineEnd++
	}
	rec, err := DecodeRecord(string(data[lineStart:lineEnd]))
	if err != nil {
		return LogRecord{}, 0, false
	}
	return rec, lineStart, true
}
