package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverAppHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TEST_APP_HOME", filepath.Join(tmpDir, Slug))

	r := newResolver("TEST_APP_HOME", filepath.Join(tmpDir, ".afd"), XDGConfig{})

	require.Equal(t, Paths{
		ConfigDir:        filepath.Join(tmpDir, Slug),
		DataDir:          filepath.Join(tmpDir, Slug, "data"),
		LogsDir:          filepath.Join(tmpDir, Slug, "logs"),
		ArchiveDir:       filepath.Join(tmpDir, Slug, "archive"),
		JobIDMapFile:     filepath.Join(tmpDir, Slug, "data", "job_id.map"),
		DirectoryMapFile: filepath.Join(tmpDir, Slug, "data", "directory.map"),
		HostStatusFile:   filepath.Join(tmpDir, Slug, "data", "hsa.dat"),
		BaseConfigFile:   filepath.Join(tmpDir, Slug, "base.yaml"),
	}, r.Paths)
}

func TestResolverLegacyDir(t *testing.T) {
	tmpDir := t.TempDir()
	legacy := filepath.Join(tmpDir, ".afd")
	require.NoError(t, os.MkdirAll(legacy, 0o755))

	r := newResolver("UNSET_APP_HOME", legacy, XDGConfig{})

	require.Equal(t, legacy, r.ConfigDir)
	require.Equal(t, filepath.Join(legacy, "data"), r.DataDir)
}

func TestResolverXDG(t *testing.T) {
	r := newResolver("UNSET_APP_HOME", filepath.Join(t.TempDir(), ".missing"), XDGConfig{
		DataHome:   "/home/user/.local/share",
		ConfigHome: "/home/user/.config",
	})

	require.Equal(t, filepath.Join("/home/user/.config", Slug), r.ConfigDir)
	require.Equal(t, filepath.Join("/home/user/.local/share", Slug, "data"), r.DataDir)
}

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	t.Setenv("AFD_HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.QueryListLimit)
	require.Equal(t, "text", cfg.LogFormat)
	require.False(t, cfg.ArchiveMirror.Enabled)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "afd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
debug: true
query_list_limit: 100
archive_mirror:
  enabled: true
  bucket: afd-archive
`), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.True(t, cfg.Debug)
	require.Equal(t, 100, cfg.QueryListLimit)
	require.True(t, cfg.ArchiveMirror.Enabled)
	require.Equal(t, "afd-archive", cfg.ArchiveMirror.Bucket)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AFD_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("AFD_HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "redis.internal:6379", cfg.RedisAddr)
}
