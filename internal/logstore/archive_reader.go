package logstore

import (
	"fmt"
	"os"
)

// ReadRecordAt re-opens and maps the log file at path and decodes the
// single record whose line starts at lineOffset, the Archive Reader
// join spec.md §4.5 step 1 describes ("resolve (job_id,
// archive_subpath, local_filename) via the Archive Reader"). Callers
// carry lineOffset forward from an earlier EmittedRecord.LineOffset;
// ok is false if lineOffset no longer names a well-formed record
// (e.g. the file rotated out from under the selection).
func ReadRecordAt(path string, lineOffset int64) (rec LogRecord, ok bool, err error) {
	mf, err := openMapped(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LogRecord{}, false, nil
		}
		return LogRecord{}, false, fmt.Errorf("logstore: open %s: %w", path, err)
	}
	defer mf.Close()

	data := mf.bytes()
	if data == nil || lineOffset < 0 || lineOffset >= int64(len(data)) {
		return LogRecord{}, false, nil
	}

	lineEnd := lineOffset
	n := int64(len(data))
	for lineEnd < n && data[lineEnd] != '\n' {
		lineEnd++
	}
	rec, err = DecodeRecord(string(data[lineOffset:lineEnd]))
	if err != nil {
		return LogRecord{}, false, nil
	}
	return rec, true, nil
}
