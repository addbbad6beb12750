// Package logstore implements AFD's append-only output log: the
// per-delivery LogRecord wire format (spec.md §3, §6), the rotating
// LogFile naming scheme, the mmap-backed IndexBuffer build, and the
// streaming query engine with its running summary accumulator (spec.md
// §4.2).
package logstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the single-digit wire code recorded in a LogRecord,
// spec.md §6: "Protocol digit encoding: FTP=1, SMTP=2, LOC=3, SCP=4,
// WMO=5, MAP=6 (values are stable wire constants)."
type Protocol int

const (
	ProtocolUnknown Protocol = 0
	ProtocolFTP     Protocol = 1
	ProtocolSMTP    Protocol = 2
	ProtocolLOC     Protocol = 3
	ProtocolSCP     Protocol = 4
	ProtocolWMO     Protocol = 5
	ProtocolMAP     Protocol = 6
)

func (p Protocol) String() string {
	switch p {
	case ProtocolFTP:
		return "FTP"
	case ProtocolSMTP:
		return "SMTP"
	case ProtocolLOC:
		return "LOC"
	case ProtocolSCP:
		return "SCP"
	case ProtocolWMO:
		return "WMO"
	case ProtocolMAP:
		return "MAP"
	default:
		return "unknown"
	}
}

// HostAliasWidth is the fixed field width for LogRecord.HostAlias on
// the wire (spec.md §3: "host_alias: fixed-width identifier (bounded,
// e.g. <= 16 chars)").
const HostAliasWidth = 16

// TimestampWidth is the fixed, left-zero-padded width of the
// timestamp field (spec.md §3).
const TimestampWidth = 10

// LogRecord is one successful delivery, spec.md §3.
type LogRecord struct {
	Timestamp       int64
	HostAlias       string
	Protocol        Protocol
	FilenameLocal   string
	FilenameRemote  string // empty iff same as local
	FileSize        int64
	TransferSeconds float64
	JobID           uint64
	ArchiveSubpath  string // empty iff not archived
}

// Archived reports whether r carries an archive subpath, matching the
// "a line without archive_subpath means not archived" rule.
func (r LogRecord) Archived() bool { return r.ArchiveSubpath != "" }

// Encode renders r in the bit-exact wire format of spec.md §6,
// terminated by a single line feed:
//
//	<timestamp:10 digits> <host_alias:fixed> <proto:1 digit> <local_name>[ /<remote_name>] <size> <duration> <job_id>[ <archive_subpath>]\n
func (r LogRecord) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%0*d", TimestampWidth, r.Timestamp)
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-*s", HostAliasWidth, truncate(r.HostAlias, HostAliasWidth))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%d", int(r.Protocol))
	b.WriteByte(' ')
	b.WriteString(r.FilenameLocal)
	if r.FilenameRemote != "" && r.FilenameRemote != r.FilenameLocal {
		b.WriteString(" /")
		b.WriteString(r.FilenameRemote)
	}
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%d", r.FileSize)
	b.WriteByte(' ')
	b.WriteString(formatDuration(r.TransferSeconds))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%d", r.JobID)
	if r.ArchiveSubpath != "" {
		b.WriteByte(' ')
		b.WriteString(r.ArchiveSubpath)
	}
	b.WriteByte('\n')
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatDuration(seconds float64) string {
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".00"
	}
	return s
}

// DecodeRecord parses one line (without its trailing newline) back
// into a LogRecord. It is the inverse of Encode for any line Encode
// itself produced; lines from other well-formed sources that omit the
// optional remote-name slash or archive subpath are also accepted.
func DecodeRecord(line string) (LogRecord, error) {
	if len(line) < TimestampWidth+1+HostAliasWidth+1+1 {
		return LogRecord{}, fmt.Errorf("logstore: line too short to contain a record: %q", line)
	}
	tsField := line[:TimestampWidth]
	ts, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return LogRecord{}, fmt.Errorf("logstore: bad timestamp field %q: %w", tsField, err)
	}
	rest := line[TimestampWidth:]
	if len(rest) == 0 || rest[0] != ' ' {
		return LogRecord{}, fmt.Errorf("logstore: missing separator after timestamp")
	}
	rest = rest[1:]
	if len(rest) < HostAliasWidth {
		return LogRecord{}, fmt.Errorf("logstore: line too short for host_alias field")
	}
	hostAlias := strings.TrimRight(rest[:HostAliasWidth], " ")
	rest = rest[HostAliasWidth:]
	if len(rest) == 0 || rest[0] != ' ' {
		return LogRecord{}, fmt.Errorf("logstore: missing separator after host_alias")
	}
	rest = rest[1:]

	fields := strings.Split(rest, " ")
	if len(fields) < 5 {
		return LogRecord{}, fmt.Errorf("logstore: too few fields in record tail: %q", rest)
	}

	protoVal, err := strconv.Atoi(fields[0])
	if err != nil {
		return LogRecord{}, fmt.Errorf("logstore: bad protocol digit %q: %w", fields[0], err)
	}

	idx := 1
	local := fields[idx]
	idx++
	var remote string
	if idx < len(fields) && strings.HasPrefix(fields[idx], "/") {
		remote = fields[idx][1:]
		idx++
	}
	if idx+2 >= len(fields) {
		return LogRecord{}, fmt.Errorf("logstore: truncated record tail: %q", rest)
	}
	size, err := strconv.ParseInt(fields[idx], 10, 64)
	if err != nil {
		return LogRecord{}, fmt.Errorf("logstore: bad size field %q: %w", fields[idx], err)
	}
	idx++
	duration, err := strconv.ParseFloat(fields[idx], 64)
	if err != nil {
		return LogRecord{}, fmt.Errorf("logstore: bad duration field %q: %w", fields[idx], err)
	}
	idx++
	jobID, err := strconv.ParseUint(fields[idx], 10, 64)
	if err != nil {
		return LogRecord{}, fmt.Errorf("logstore: bad job_id field %q: %w", fields[idx], err)
	}
	idx++

	var archiveSubpath string
	if idx < len(fields) {
		archiveSubpath = strings.Join(fields[idx:], " ")
	}

	return LogRecord{
		Timestamp:       ts,
		HostAlias:       hostAlias,
		Protocol:        Protocol(protoVal),
		FilenameLocal:   local,
		FilenameRemote:  remote,
		FileSize:        size,
		TransferSeconds: duration,
		JobID:           jobID,
		ArchiveSubpath:  archiveSubpath,
	}, nil
}
