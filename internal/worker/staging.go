package worker

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// stagingFile is one regular file found in a job's staging directory.
type stagingFile struct {
	Name string
	Path string
	Size int64
}

// listStagingFiles returns the regular files in dir, sorted by name for
// deterministic delivery order, deleting (and excluding) any file
// older than ageLimit along the way — spec.md §4.4 INIT: "if no files
// are queued (all aged out), exit NO_FILES_TO_SEND after cleaning the
// staging directory." ageLimit <= 0 disables the age check.
func listStagingFiles(dir string, ageLimit time.Duration) ([]stagingFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []stagingFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if ageLimit > 0 && time.Since(info.ModTime()) > ageLimit {
			_ = os.Remove(path)
			continue
		}
		out = append(out, stagingFile{Name: entry.Name(), Path: path, Size: info.Size()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
