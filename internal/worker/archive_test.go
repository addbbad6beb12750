package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArchiveFileLinksWithinSameDevice(t *testing.T) {
	root := t.TempDir()
	localPath := filepath.Join(root, "staged.txt")
	require.NoError(t, os.WriteFile(localPath, []byte("payload"), 0o644))
	archiveRoot := filepath.Join(root, "archive")

	subpath, overwrite, err := archiveFile(archiveRoot, "hosta", "alice", 3, 42, localPath, "staged.txt")
	require.NoError(t, err)
	require.False(t, overwrite)
	require.FileExists(t, filepath.Join(archiveRoot, subpath))

	contents, err := os.ReadFile(filepath.Join(archiveRoot, subpath))
	require.NoError(t, err)
	require.Equal(t, "payload", string(contents))
}

func TestArchiveFileVanishedBeforeArchiving(t *testing.T) {
	root := t.TempDir()
	archiveRoot := filepath.Join(root, "archive")
	missing := filepath.Join(root, "gone.txt")

	_, _, err := archiveFile(archiveRoot, "hosta", "alice", 1, 1, missing, "gone.txt")
	require.ErrorIs(t, err, errFileVanished)
}

func TestCopyFilePreservesContents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	require.NoError(t, copyFile(src, dst))

	contents, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(contents))
}
