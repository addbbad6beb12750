package scheduler

import (
	"strconv"
	"strings"

	"github.com/hfs/afd-sub007/internal/worker"
)

// ParseStagingDirName decodes a staging queue directory name of the
// form <priority>_<timestamp>_<counter>_<job_id>, or
// <timestamp>_<counter>_<job_id> when the sender used NO_PRIORITY
// (spec.md §6 "Staging queue layout"). Dir is left empty; the caller
// fills in the full path.
func ParseStagingDirName(name string) (StagingJob, bool) {
	parts := strings.Split(name, "_")

	var job StagingJob
	switch len(parts) {
	case 3:
		job.Priority = worker.NoPriority
	case 4:
		prio, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return StagingJob{}, false
		}
		job.Priority = byte(prio)
		parts = parts[1:]
	default:
		return StagingJob{}, false
	}

	if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
		return StagingJob{}, false
	}
	if _, err := strconv.ParseUint(parts[1], 10, 32); err != nil {
		return StagingJob{}, false
	}
	jobID, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return StagingJob{}, false
	}
	job.JobID = jobID
	return job, true
}
