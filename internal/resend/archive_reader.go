package resend

import (
	"os"
	"path/filepath"

	"github.com/hfs/afd-sub007/internal/logstore"
)

// ArchiveReader resolves Selections to their logged (job_id,
// archive_subpath, local_filename), spec.md §4.5 step 1: "resolve
// (job_id, archive_subpath, local_filename) via the Archive Reader. If
// the record has no archive subpath, mark not_archived. If the
// archived file is missing on disk, mark not_in_archive. Otherwise
// mark pending."
type ArchiveReader struct {
	Store       *logstore.Store
	ArchiveRoot string
}

// Resolve resolves every selection independently and returns one
// Entry per selection, in selection order.
func (a *ArchiveReader) Resolve(selections []Selection) []*Entry {
	entries := make([]*Entry, len(selections))
	for i, sel := range selections {
		entries[i] = a.resolveOne(sel)
	}
	return entries
}

func (a *ArchiveReader) resolveOne(sel Selection) *Entry {
	e := &Entry{Selection: sel}

	path := a.Store.PathForIndex(sel.LogFileIndex)
	rec, ok, err := logstore.ReadRecordAt(path, sel.LineOffset)
	if err != nil || !ok {
		e.Status = StatusNotFound
		return e
	}

	e.JobID = rec.JobID
	if !rec.Archived() {
		e.Status = StatusNotArchived
		return e
	}

	e.ArchiveSubpath = rec.ArchiveSubpath
	e.LocalFilename = rec.FilenameLocal

	if _, err := os.Stat(filepath.Join(a.ArchiveRoot, rec.ArchiveSubpath)); err != nil {
		e.Status = StatusNotInArchive
		return e
	}

	e.Status = StatusPending
	return e
}

// GroupByJobID groups pending entries by job_id, preserving the order
// job IDs were first seen in entries (spec.md §4.5 step 2: "Group
// pending entries by job_id. Process groups one at a time."). Entries
// not in StatusPending are skipped; they were already finalized by
// Resolve.
func GroupByJobID(entries []*Entry) (order []uint64, groups map[uint64][]*Entry) {
	groups = make(map[uint64][]*Entry)
	for _, e := range entries {
		if e.Status != StatusPending {
			continue
		}
		if _, seen := groups[e.JobID]; !seen {
			order = append(order, e.JobID)
		}
		groups[e.JobID] = append(groups[e.JobID], e)
	}
	return order, groups
}
