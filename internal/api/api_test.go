package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub007/internal/api"
	"github.com/hfs/afd-sub007/internal/logstore"
	"github.com/hfs/afd-sub007/internal/perm"
)

func seedStore(t *testing.T, workDir string) (*logstore.Store, []int64) {
	t.Helper()
	store := logstore.NewStore(workDir, 0)

	records := []logstore.LogRecord{
		{Timestamp: 1700000000, HostAlias: "host_a", Protocol: logstore.ProtocolFTP, FilenameLocal: "one.txt", FileSize: 1024, TransferSeconds: 0.5, JobID: 7, ArchiveSubpath: "7/one.txt"},
		{Timestamp: 1700000060, HostAlias: "host_b", Protocol: logstore.ProtocolSCP, FilenameLocal: "two.txt", FileSize: 2048, TransferSeconds: 1.0, JobID: 7, ArchiveSubpath: "7/two.txt"},
		{Timestamp: 1700000120, HostAlias: "host_a", Protocol: logstore.ProtocolSMTP, FilenameLocal: "three.txt", FileSize: 512, TransferSeconds: 0.2, JobID: 9},
	}

	offsets := make([]int64, len(records))
	var off int64
	for i, r := range records {
		offsets[i] = off
		require.NoError(t, store.Append(r))
		off += int64(len(r.Encode()))
	}
	return store, offsets
}

func newTestServer(t *testing.T, perms perm.Permissions) (*api.Server, string, []int64) {
	t.Helper()
	workDir := t.TempDir()
	store, offsets := seedStore(t, workDir)

	archiveRoot := filepath.Join(workDir, "archive")
	queueRoot := filepath.Join(workDir, "tmp")
	require.NoError(t, os.MkdirAll(queueRoot, 0o755))
	for _, sub := range []string{"7/one.txt", "7/two.txt"} {
		path := filepath.Join(archiveRoot, sub)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	}

	server := api.NewServer(store, nil, archiveRoot, queueRoot,
		filepath.Join(workDir, "fd_wake_up"), perms, nil)
	return server, queueRoot, offsets
}

func getJSON(t *testing.T, h http.Handler, url string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestQueryEndpointReturnsWindow(t *testing.T) {
	server, _, _ := newTestServer(t, perm.All())
	router := server.Routes()

	var resp struct {
		Records []struct {
			Filename string `json:"filename"`
			JobID    uint64 `json:"job_id"`
			Archived bool   `json:"archived"`
		} `json:"records"`
		Summary struct {
			Count   int   `json:"count"`
			Bytes   int64 `json:"bytes"`
			FirstTS int64 `json:"first_ts"`
			LastTS  int64 `json:"last_ts"`
		} `json:"summary"`
	}
	rec := getJSON(t, router, "/api/v1/olog?start=1700000000&end=1700000060", &resp)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, resp.Records, 2)
	require.Equal(t, "one.txt", resp.Records[0].Filename)
	require.True(t, resp.Records[0].Archived)
	require.Equal(t, "two.txt", resp.Records[1].Filename)
	require.Equal(t, 2, resp.Summary.Count)
	require.Equal(t, int64(3072), resp.Summary.Bytes)
	require.Equal(t, int64(1700000000), resp.Summary.FirstTS)
	require.Equal(t, int64(1700000060), resp.Summary.LastTS)
}

func TestQueryEndpointFilters(t *testing.T) {
	server, _, _ := newTestServer(t, perm.All())
	router := server.Routes()

	var resp struct {
		Records []struct {
			Filename string `json:"filename"`
		} `json:"records"`
	}

	rec := getJSON(t, router, "/api/v1/olog?protocols=scp", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Records, 1)
	require.Equal(t, "two.txt", resp.Records[0].Filename)

	resp.Records = nil
	rec = getJSON(t, router, "/api/v1/olog?size=%3C1000", &resp) // size=<1000
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Records, 1)
	require.Equal(t, "three.txt", resp.Records[0].Filename)

	rec = getJSON(t, router, "/api/v1/olog?protocols=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpointHonorsListLimitPermission(t *testing.T) {
	perms := perm.All()
	perms.ListLimit = 1
	server, _, _ := newTestServer(t, perms)

	var resp struct {
		Records []json.RawMessage `json:"records"`
		Message string            `json:"message"`
	}
	rec := getJSON(t, server.Routes(), "/api/v1/olog", &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Records, 1)
	require.Equal(t, logstore.ListLimitMessage(1), resp.Message)
}

func TestResendEndpointReinjects(t *testing.T) {
	server, queueRoot, offsets := newTestServer(t, perm.All())
	router := server.Routes()

	body := `{"mode":"reinject","selections":[` +
		`{"log_file_index":0,"line_offset":` + jsonInt(offsets[0]) + `},` +
		`{"log_file_index":0,"line_offset":` + jsonInt(offsets[1]) + `},` +
		`{"log_file_index":0,"line_offset":` + jsonInt(offsets[2]) + `}]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resend", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []struct {
			Status string `json:"status"`
		} `json:"entries"`
		Summary string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Equal(t, "2 files resend, 1 not archived", resp.Summary)
	require.Equal(t, "done", resp.Entries[0].Status)
	require.Equal(t, "done", resp.Entries[1].Status)
	require.Equal(t, "not_archived", resp.Entries[2].Status)

	dirs, err := os.ReadDir(queueRoot)
	require.NoError(t, err)
	require.Len(t, dirs, 1) // both archived records share job_id 7
}

func TestResendEndpointRejectsUnknownMode(t *testing.T) {
	server, _, _ := newTestServer(t, perm.All())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resend", strings.NewReader(`{"mode":"teleport"}`))
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
