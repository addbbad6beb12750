package logstore

import "os"

// Query runs q against every log file the store currently has on
// disk, oldest rotation first so records stream to onRecord in global
// time order. Files whose modification time predates the window's
// start are pruned without being opened (spec.md §3: "A file's
// modification time bounds its content's timestamp range (used for
// coarse pruning in queries)."). Query.ListLimit caps the total
// emission across all files.
func (s *Store) Query(q Query, onRecord func(EmittedRecord) bool) (Summary, string, error) {
	indices, err := s.Indices()
	if err != nil {
		return Summary{}, "", err
	}

	var total Summary
	remaining := q.ListLimit

	for i := len(indices) - 1; i >= 0; i-- {
		idx := indices[i]
		path := s.PathForIndex(idx)

		if q.StartTime > 0 {
			if info, err := os.Stat(path); err == nil && info.ModTime().Unix() < q.StartTime {
				continue
			}
		}

		fq := q
		if q.ListLimit > 0 {
			fq.ListLimit = remaining
		}
		sum, msg, err := RunQuery(path, idx, fq, onRecord)
		if err != nil {
			return total, "", err
		}
		mergeSummary(&total, sum)

		if q.ListLimit > 0 {
			remaining -= sum.Count
			if msg != "" || remaining <= 0 {
				return total, ListLimitMessage(q.ListLimit), nil
			}
		}
	}
	return total, "", nil
}

func mergeSummary(total *Summary, s Summary) {
	if s.Count == 0 {
		return
	}
	total.Count += s.Count
	total.Bytes += s.Bytes
	total.Duration += s.Duration
	if !total.hasAnyTime || s.FirstTS < total.FirstTS {
		total.FirstTS = s.FirstTS
	}
	if !total.hasAnyTime || s.LastTS > total.LastTS {
		total.LastTS = s.LastTS
	}
	total.hasAnyTime = true
}
