package logstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/logstore"
)

func appendSimple(t *testing.T, store *logstore.Store, ts int64, name string) {
	t.Helper()
	require.NoError(t, store.Append(logstore.LogRecord{
		Timestamp:       ts,
		HostAlias:       "host",
		Protocol:        logstore.ProtocolSCP,
		FilenameLocal:   name,
		FileSize:        10,
		TransferSeconds: 0.1,
		JobID:           1,
	}))
}

func TestStoreQuerySpansRotatedFiles(t *testing.T) {
	store := logstore.NewStore(t.TempDir(), 0)

	appendSimple(t, store, 1700000000, "old1")
	appendSimple(t, store, 1700000060, "old2")
	require.NoError(t, store.Rotate())
	appendSimple(t, store, 1700000120, "new1")

	var names []string
	summary, msg, err := store.Query(logstore.Query{
		StartTime: 1700000000,
		EndTime:   1700000200,
	}, func(r logstore.EmittedRecord) bool {
		names = append(names, r.DisplayFilename)
		return true
	})
	require.NoError(t, err)
	require.Empty(t, msg)
	require.Equal(t, []string{"old1", "old2", "new1"}, names)
	require.Equal(t, 3, summary.Count)
	require.Equal(t, int64(30), summary.Bytes)
	require.Equal(t, int64(1700000000), summary.FirstTS)
	require.Equal(t, int64(1700000120), summary.LastTS)
}

func TestParseSizeFilter(t *testing.T) {
	f, err := logstore.ParseSizeFilter(">1024")
	require.NoError(t, err)
	require.Equal(t, logstore.SizeGT, f.Op)
	require.Equal(t, int64(1024), f.Value)

	f, err = logstore.ParseSizeFilter("512")
	require.NoError(t, err)
	require.Equal(t, logstore.SizeEQ, f.Op)

	_, err = logstore.ParseSizeFilter("<big")
	require.Error(t, err)
	_, err = logstore.ParseSizeFilter("")
	require.Error(t, err)
}

func TestParseProtocolMask(t *testing.T) {
	mask, err := logstore.ParseProtocolMask("ftp,scp")
	require.NoError(t, err)
	require.Equal(t, uint8(1<<logstore.ProtocolFTP|1<<logstore.ProtocolSCP), mask)

	_, err = logstore.ParseProtocolMask("carrier-pigeon")
	require.Error(t, err)
}

func TestStoreQueryListLimitSpansFiles(t *testing.T) {
	store := logstore.NewStore(t.TempDir(), 0)

	appendSimple(t, store, 1700000000, "a")
	appendSimple(t, store, 1700000060, "b")
	require.NoError(t, store.Rotate())
	appendSimple(t, store, 1700000120, "c")

	var names []string
	summary, msg, err := store.Query(logstore.Query{
		StartTime: 1700000000,
		EndTime:   1700000200,
		ListLimit: 2,
	}, func(r logstore.EmittedRecord) bool {
		names = append(names, r.DisplayFilename)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, logstore.ListLimitMessage(2), msg)
	require.Equal(t, []string{"a", "b"}, names)
	require.Equal(t, 2, summary.Count)
}
