package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListStagingFilesSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "bb")
	writeFile(t, dir, "a.txt", "a")

	files, err := listStagingFiles(dir, 0)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.txt", files[0].Name)
	require.Equal(t, "b.txt", files[1].Name)
	require.EqualValues(t, 1, files[0].Size)
	require.EqualValues(t, 2, files[1].Size)
}

func TestListStagingFilesDiscardsAgedOut(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))
	writeFile(t, dir, "fresh.txt", "y")

	files, err := listStagingFiles(dir, time.Minute)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "fresh.txt", files[0].Name)
	_, statErr := os.Stat(old)
	require.True(t, os.IsNotExist(statErr))
}

func TestListStagingFilesMissingDirIsEmpty(t *testing.T) {
	files, err := listStagingFiles(filepath.Join(t.TempDir(), "missing"), 0)
	require.NoError(t, err)
	require.Empty(t, files)
}

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}
