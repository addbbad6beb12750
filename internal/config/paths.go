// Package config resolves AFD's on-disk layout and loads its runtime
// configuration, modeled on the teacher's own config package: an
// environment/XDG-aware path resolver plus a viper-backed Load().
package config

import (
	"os"
	"path/filepath"
)

// Slug names the application directory under the user or system
// config root.
const Slug = "afd"

// Paths is the resolved set of directories and well-known files AFD
// reads and writes.
type Paths struct {
	ConfigDir        string
	DataDir          string
	LogsDir          string
	ArchiveDir       string
	JobIDMapFile     string
	DirectoryMapFile string
	HostStatusFile   string
	BaseConfigFile   string
}

// XDGConfig carries the two XDG base directories the resolver
// consults when neither an app-home env var nor a legacy dotfile
// directory is present.
type XDGConfig struct {
	DataHome   string
	ConfigHome string
}

// PathResolver computes Paths from environment state.
type PathResolver struct {
	Paths
	XDGConfig
}

// newResolver mirrors the teacher's three-tier precedence: an explicit
// app-home environment variable, then a legacy dotfile directory if it
// already exists, then XDG base directories, falling back to
// ~/.config/afd and ~/.local/share/afd.
func newResolver(appHomeEnv, legacyDir string, xdg XDGConfig) PathResolver {
	if home := os.Getenv(appHomeEnv); home != "" {
		return PathResolver{Paths: pathsUnder(home, home), XDGConfig: xdg}
	}
	if info, err := os.Stat(legacyDir); err == nil && info.IsDir() {
		return PathResolver{Paths: pathsUnder(legacyDir, legacyDir), XDGConfig: xdg}
	}
	configHome := xdg.ConfigHome
	dataHome := xdg.DataHome
	if configHome == "" {
		configHome = filepath.Join(os.Getenv("HOME"), ".config")
	}
	if dataHome == "" {
		dataHome = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return PathResolver{
		Paths: Paths{
			ConfigDir:        filepath.Join(configHome, Slug),
			DataDir:          filepath.Join(dataHome, Slug, "data"),
			LogsDir:          filepath.Join(dataHome, Slug, "logs"),
			ArchiveDir:       filepath.Join(dataHome, Slug, "archive"),
			JobIDMapFile:     filepath.Join(dataHome, Slug, "data", "job_id.map"),
			DirectoryMapFile: filepath.Join(dataHome, Slug, "data", "directory.map"),
			HostStatusFile:   filepath.Join(dataHome, Slug, "data", "hsa.dat"),
			BaseConfigFile:   filepath.Join(configHome, Slug, "base.yaml"),
		},
		XDGConfig: xdg,
	}
}

func pathsUnder(configDir, dataDir string) Paths {
	return Paths{
		ConfigDir:        configDir,
		DataDir:          filepath.Join(dataDir, "data"),
		LogsDir:          filepath.Join(dataDir, "logs"),
		ArchiveDir:       filepath.Join(dataDir, "archive"),
		JobIDMapFile:     filepath.Join(dataDir, "data", "job_id.map"),
		DirectoryMapFile: filepath.Join(dataDir, "data", "directory.map"),
		HostStatusFile:   filepath.Join(dataDir, "data", "hsa.dat"),
		BaseConfigFile:   filepath.Join(configDir, "base.yaml"),
	}
}

// WorkDir is the work directory the delivery subsystem's well-known
// subtrees (log/, tmp/, fifo/) hang off.
func (p Paths) WorkDir() string { return filepath.Dir(p.DataDir) }

// QueueDir is the live staging queue root, <work_dir>/tmp.
func (p Paths) QueueDir() string { return filepath.Join(p.WorkDir(), "tmp") }

// FifoDir holds the named pipes of internal/fifo.
func (p Paths) FifoDir() string { return filepath.Join(p.WorkDir(), "fifo") }

// FinFifo is where exiting workers post their pid.
func (p Paths) FinFifo() string { return filepath.Join(p.FifoDir(), "sf_fin") }

// WakeupFifo is where a single byte wakes the scheduler.
func (p Paths) WakeupFifo() string { return filepath.Join(p.FifoDir(), "fd_wake_up") }

// TransferLogFifo carries the sign-prefixed operator transfer log.
func (p Paths) TransferLogFifo() string { return filepath.Join(p.FifoDir(), "transfer_log") }

// DefaultResolver resolves Paths from the real environment: AFD_HOME,
// then ~/.afd if it already exists, then XDG.
func DefaultResolver() PathResolver {
	home, _ := os.UserHomeDir()
	return newResolver("AFD_HOME", filepath.Join(home, "."+Slug), XDGConfig{
		DataHome:   os.Getenv("XDG_DATA_HOME"),
		ConfigHome: os.Getenv("XDG_CONFIG_HOME"),
	})
}
