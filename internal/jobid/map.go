package jobid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// Fixed field widths for the on-disk Job Identity record, following
// spec.md §6: "A header word giving count, followed by count
// fixed-size records; mapped read-only." The source keeps these as
// fixed char[] buffers inside a struct written with a single fwrite;
// this rendition reproduces that with fixed-width binary.encoding
// fields so the file is still a flat array of constant-size records a
// reader can index directly without parsing a delimiter.
const (
	recipientWidth   = 256
	filtersWidth     = 512
	optionsWidth     = 512
	directoryWidth   = 256
	headerWidth      = 4 // uint32 record count
	jobIdentityWidth = 8 /*job_id*/ + recipientWidth + 4 /*dir_id*/ + filtersWidth + optionsWidth + optionsWidth + 1 /*priority*/
)

// Map is a read-only memory-mapped Job Identity Map plus its
// companion Directory Name Map (spec.md §6). Every consumer maps it
// read-only; a privileged external process rebuilds and atomically
// swaps the underlying file (spec.md §5).
type Map struct {
	file        *os.File
	mapping     mmap.MMap
	byJobID     map[uint64]JobIdentity
	directories map[uint32]string
}

// Open memory-maps the Job Identity Map file at path and the
// Directory Name Map file at dirPath, decoding both fully into an
// in-process index. Both files are expected to have been produced by
// Encode/EncodeDirectoryMap (or the external rebuild tool they stand
// in for).
func Open(path, dirPath string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jobid: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	m := &Map{file: f, byJobID: make(map[uint64]JobIdentity)}
	if info.Size() > 0 {
		mapping, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("jobid: mmap %s: %w", path, err)
		}
		m.mapping = mapping
		if err := m.decodeAll(mapping); err != nil {
			m.Close()
			return nil, err
		}
	}

	directories, err := readDirectoryMap(dirPath)
	if err != nil {
		m.Close()
		return nil, err
	}
	m.directories = directories

	return m, nil
}

// Close unmaps and closes the underlying file.
func (m *Map) Close() error {
	var err error
	if m.mapping != nil {
		err = m.mapping.Unmap()
	}
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Lookup resolves job_id to its full identity, implementing the join
// the Log Query Engine needs for directory/user filters (spec.md
// §4.2 step 3). It satisfies internal/logstore.JobLookup.
func (m *Map) Lookup(jobID uint64) (recipient, directory, user string, ok bool) {
	ident, found := m.byJobID[jobID]
	if !found {
		return "", "", "", false
	}
	return ident.Recipient.Redacted(), m.Directory(ident.DirectoryID), ident.Recipient.User, true
}

// Get returns the full decoded JobIdentity for job_id.
func (m *Map) Get(jobID uint64) (JobIdentity, bool) {
	ident, ok := m.byJobID[jobID]
	return ident, ok
}

func (m *Map) decodeAll(data []byte) error {
	if len(data) < headerWidth {
		return fmt.Errorf("jobid: map file shorter than header")
	}
	count := binary.LittleEndian.Uint32(data[:headerWidth])
	offset := headerWidth
	for i := uint32(0); i < count; i++ {
		if offset+jobIdentityWidth > len(data) {
			return fmt.Errorf("jobid: truncated record %d", i)
		}
		ident, err := decodeIdentity(data[offset : offset+jobIdentityWidth])
		if err != nil {
			return fmt.Errorf("jobid: decode record %d: %w", i, err)
		}
		m.byJobID[ident.JobID] = ident
		offset += jobIdentityWidth
	}
	return nil
}

func decodeIdentity(rec []byte) (JobIdentity, error) {
	jobID := binary.LittleEndian.Uint64(rec[:8])
	rest := rec[8:]

	recipientRaw := decodeFixedString(rest[:recipientWidth])
	rest = rest[recipientWidth:]

	dirID := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]

	filtersRaw := decodeFixedString(rest[:filtersWidth])
	rest = rest[filtersWidth:]

	localOptsRaw := decodeFixedString(rest[:optionsWidth])
	rest = rest[optionsWidth:]

	sendOptsRaw := decodeFixedString(rest[:optionsWidth])
	rest = rest[optionsWidth:]

	priority := rest[0]

	recipient, err := ParseRecipientURL(recipientRaw)
	if err != nil {
		return JobIdentity{}, err
	}

	return JobIdentity{
		JobID:        jobID,
		Recipient:    recipient,
		DirectoryID:  dirID,
		Filters:      splitNonEmpty(filtersRaw, '\n'),
		LocalOptions: ParseOptionList(localOptsRaw),
		SendOptions:  ParseOptionList(sendOptsRaw),
		Priority:     priority,
	}, nil
}

func decodeFixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Encode writes identities to path in the fixed-record format Open
// expects: a uint32 header giving count, followed by that many
// constant-size records. It is the counterpart to the external
// rebuild process spec.md §5 describes ("rebuilt by a privileged
// external process which then swaps the file atomically") and is used
// directly by tests and by any future map-building tool.
func Encode(path string, identities []JobIdentity) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jobid: create %s: %w", path, err)
	}
	defer f.Close()

	var header [headerWidth]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(identities)))
	if _, err := f.Write(header[:]); err != nil {
		return err
	}

	for _, ident := range identities {
		rec, err := encodeIdentity(ident)
		if err != nil {
			return err
		}
		if _, err := f.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func encodeIdentity(ident JobIdentity) ([]byte, error) {
	rec := make([]byte, jobIdentityWidth)
	binary.LittleEndian.PutUint64(rec[:8], ident.JobID)
	offset := 8

	if err := putFixedString(rec[offset:offset+recipientWidth], ident.Recipient.Raw, "recipient"); err != nil {
		return nil, err
	}
	offset += recipientWidth

	binary.LittleEndian.PutUint32(rec[offset:offset+4], ident.DirectoryID)
	offset += 4

	filtersBlob := joinLines(ident.Filters)
	if err := putFixedString(rec[offset:offset+filtersWidth], filtersBlob, "filters"); err != nil {
		return nil, err
	}
	offset += filtersWidth

	localBlob := joinOptionLines(ident.LocalOptions)
	if err := putFixedString(rec[offset:offset+optionsWidth], localBlob, "local_options"); err != nil {
		return nil, err
	}
	offset += optionsWidth

	sendBlob := joinOptionLines(ident.SendOptions)
	if err := putFixedString(rec[offset:offset+optionsWidth], sendBlob, "send_options"); err != nil {
		return nil, err
	}
	offset += optionsWidth

	rec[offset] = ident.Priority
	return rec, nil
}

func putFixedString(dst []byte, s, field string) error {
	if len(s) >= len(dst) {
		return fmt.Errorf("jobid: %s exceeds fixed width %d bytes", field, len(dst))
	}
	copy(dst, s)
	return nil
}

func joinLines(items []string) string {
	var b bytes.Buffer
	for _, item := range items {
		b.WriteString(item)
		b.WriteByte('\n')
	}
	return b.String()
}

func joinOptionLines(opts []Option) string {
	var b bytes.Buffer
	for _, o := range opts {
		b.WriteString(o.Raw)
		b.WriteByte('\n')
	}
	return b.String()
}
