package jobid

// JobIdentity is one known job_id's full identity (spec.md §3
// JobIdentity). It is the in-memory decoded form of a fixed-size
// record from the on-disk Job Identity Map.
type JobIdentity struct {
	JobID       uint64
	Recipient   RecipientURL
	DirectoryID uint32
	Filters     []string
	LocalOptions  []Option
	SendOptions   []Option
	Priority    byte
}

// Directory returns the name_map-resolved directory path, or "" if
// dirID is not present in m.
func (m *Map) Directory(dirID uint32) string {
	return m.directories[dirID]
}
