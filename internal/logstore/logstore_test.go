package logstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/logstore"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	r := logstore.LogRecord{
		Timestamp:       1700000000,
		HostAlias:       "mirror1",
		Protocol:        logstore.ProtocolSCP,
		FilenameLocal:   "data.bin",
		FileSize:        1024,
		TransferSeconds: 0.5,
		JobID:           42,
	}
	decoded, err := logstore.DecodeRecord(r.Encode()[:len(r.Encode())-1])
	require.NoError(t, err)
	require.Equal(t, r.Timestamp, decoded.Timestamp)
	require.Equal(t, r.HostAlias, decoded.HostAlias)
	require.Equal(t, r.Protocol, decoded.Protocol)
	require.Equal(t, r.FilenameLocal, decoded.FilenameLocal)
	require.Equal(t, r.FileSize, decoded.FileSize)
	require.Equal(t, r.TransferSeconds, decoded.TransferSeconds)
	require.Equal(t, r.JobID, decoded.JobID)
	require.False(t, decoded.Archived())
}

func TestRecordEncodeDecodeWithRemoteAndArchive(t *testing.T) {
	r := logstore.LogRecord{
		Timestamp:       1700000001,
		HostAlias:       "host",
		Protocol:        logstore.ProtocolFTP,
		FilenameLocal:   "report.csv",
		FilenameRemote:  "incoming/report.csv",
		FileSize:        2048,
		TransferSeconds: 1.25,
		JobID:           7,
		ArchiveSubpath:  "2026/07/31/report.csv",
	}
	line := r.Encode()
	decoded, err := logstore.DecodeRecord(line[:len(line)-1])
	require.NoError(t, err)
	require.Equal(t, r.FilenameRemote, decoded.FilenameRemote)
	require.Equal(t, r.ArchiveSubpath, decoded.ArchiveSubpath)
	require.True(t, decoded.Archived())
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)

	err := store.Append(logstore.LogRecord{
		Timestamp:       1700000000,
		HostAlias:       "mirror1",
		Protocol:        logstore.ProtocolSCP,
		FilenameLocal:   "data.bin",
		FileSize:        1024,
		TransferSeconds: 0.50,
		JobID:           42,
	})
	require.NoError(t, err)

	var emitted []logstore.EmittedRecord
	summary, limitMsg, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime: 1700000000,
		EndTime:   1700000000,
	}, func(r logstore.EmittedRecord) bool {
		emitted = append(emitted, r)
		return true
	})
	require.NoError(t, err)
	require.Empty(t, limitMsg)
	require.Len(t, emitted, 1)
	require.Equal(t, "data.bin", emitted[0].DisplayFilename)
	require.Equal(t, 1, summary.Count)
	require.Equal(t, int64(1024), summary.Bytes)
	require.InDelta(t, 0.50, summary.Duration, 1e-9)
	require.Equal(t, int64(1700000000), summary.FirstTS)
	require.Equal(t, int64(1700000000), summary.LastTS)
}

func TestQueryExcludesOutOfWindowRecords(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)

	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000000, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "old.txt", FileSize: 1, JobID: 1,
	}))
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700001000, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "new.txt", FileSize: 1, JobID: 1,
	}))

	summary, _, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime: 1700000500,
		EndTime:   1700002000,
	}, func(logstore.EmittedRecord) bool { return true })
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
}

func TestQueryProtocolMask(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000000, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "f.txt", FileSize: 1, JobID: 1,
	}))
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000001, HostAlias: "a", Protocol: logstore.ProtocolSCP,
		FilenameLocal: "s.txt", FileSize: 1, JobID: 1,
	}))

	summary, _, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime:    1700000000,
		EndTime:      1700000001,
		ProtocolMask: 1 << uint(logstore.ProtocolFTP),
	}, func(logstore.EmittedRecord) bool { return true })
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
}

func TestQueryFilenamePattern(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000000, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "report.csv", FileSize: 1, JobID: 1,
	}))
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000001, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "image.png", FileSize: 1, JobID: 1,
	}))

	summary, _, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime:       1700000000,
		EndTime:         1700000001,
		FilenamePattern: "*.csv",
	}, func(logstore.EmittedRecord) bool { return true })
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
}

func TestQuerySizeFilter(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000000, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "small.txt", FileSize: 100, JobID: 1,
	}))
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000001, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "big.txt", FileSize: 10000, JobID: 1,
	}))

	summary, _, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime:  1700000000,
		EndTime:    1700000001,
		SizeFilter: &logstore.SizeFilter{Op: logstore.SizeGT, Value: 1000},
	}, func(logstore.EmittedRecord) bool { return true })
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
}

type fakeLookup struct {
	recipient, directory, user string
}

func (f fakeLookup) Lookup(jobID uint64) (string, string, string, bool) {
	return f.recipient, f.directory, f.user, true
}

func TestQueryDirectoryPatternUsesLookup(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp: 1700000000, HostAlias: "a", Protocol: logstore.ProtocolFTP,
		FilenameLocal: "f.txt", FileSize: 1, JobID: 9,
	}))

	summary, _, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime:        1700000000,
		EndTime:          1700000000,
		DirectoryPattern: "/data/*",
		Lookup:           fakeLookup{recipient: "scp://host/data/out", directory: "/data/out", user: "afd"},
	}, func(logstore.EmittedRecord) bool { return true })
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
}

func TestQueryListLimit(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(logstore.LogRecord{
			Timestamp: 1700000000 + int64(i), HostAlias: "a", Protocol: logstore.ProtocolFTP,
			FilenameLocal: "f.txt", FileSize: 1, JobID: 1,
		}))
	}

	_, limitMsg, err := logstore.RunQuery(store.PathForIndex(0), 0, logstore.Query{
		StartTime: 1700000000,
		EndTime:   1700000010,
		ListLimit: 2,
	}, func(logstore.EmittedRecord) bool { return true })
	require.NoError(t, err)
	require.Equal(t, logstore.ListLimitMessage(2), limitMsg)
}

func TestStoreRotate(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 3)
	require.NoError(t, store.Append(logstore.LogRecord{Timestamp: 1, HostAlias: "a", FilenameLocal: "x", JobID: 1}))

	require.NoError(t, store.Rotate())
	_, err := os.Stat(store.PathForIndex(1))
	require.NoError(t, err)
	_, err = os.Stat(store.PathForIndex(0))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, store.Append(logstore.LogRecord{Timestamp: 2, HostAlias: "a", FilenameLocal: "y", JobID: 1}))
	indices, err := store.Indices()
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 1}, indices)
}

func TestStoreRotateDropsOldest(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 2)
	require.NoError(t, store.Append(logstore.LogRecord{Timestamp: 1, HostAlias: "a", FilenameLocal: "x", JobID: 1}))
	require.NoError(t, store.Rotate())
	require.NoError(t, store.Append(logstore.LogRecord{Timestamp: 2, HostAlias: "a", FilenameLocal: "y", JobID: 1}))
	require.NoError(t, store.Rotate())

	_, err := os.Stat(filepath.Join(store.LogDir(), "OUTPUT_LOG.0"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.PathForIndex(1))
	require.NoError(t, err)
}

func TestEarliestLatest(t *testing.T) {
	dir := t.TempDir()
	store := logstore.NewStore(dir, 0)
	require.NoError(t, store.Append(logstore.LogRecord{Timestamp: 100, HostAlias: "a", FilenameLocal: "x", JobID: 1}))
	require.NoError(t, store.Append(logstore.LogRecord{Timestamp: 200, HostAlias: "a", FilenameLocal: "y", JobID: 1}))

	earliest, latest, ok, err := logstore.EarliestLatest(store.PathForIndex(0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(100), earliest)
	require.Equal(t, int64(200), latest)
}

func TestEarliestLatestMissingFile(t *testing.T) {
	_, _, ok, err := logstore.EarliestLatest(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.False(t, ok)
}
