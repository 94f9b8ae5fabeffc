package downloads

import (
	"fmt"
	"os"
	"path/filepath"
)

// moveStagedFiles relocates a finished transfer's files out of the staging
// directory into the final folder, preserving relative paths. Files that
// never materialized on disk are skipped. Returns the final paths of the
// files actually moved.
func moveStagedFiles(stagingDir, finalDir string, relPaths []string) ([]string, error) {
	var moved []string
	for _, rel := range relPaths {
		src := filepath.Join(stagingDir, rel)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(finalDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return moved, fmt.Errorf("create destination dir: %w", err)
		}
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("move %s: %w", rel, err)
		}
		moved = append(moved, dst)
	}
	pruneEmptyDirs(stagingDir)
	return moved, nil
}

// pruneEmptyDirs removes now-empty subdirectories left behind after files
// were moved out. The root itself is left alone.
func pruneEmptyDirs(root string) {
	var dirs []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	// Deepest first.
	for i := len(dirs) - 1; i >= 0; i-- {
		os.Remove(dirs[i])
	}
}

// removeStagingDir drops the transfer client's bookkeeping files and then
// the staging directory itself, but only once it is otherwise empty.
func removeStagingDir(stagingDir string) {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		// The piece-completion database is the only artifact the client
		// leaves behind.
		if !e.IsDir() && filepath.Ext(e.Name()) == ".db" {
			os.Remove(filepath.Join(stagingDir, e.Name()))
		}
	}
	os.Remove(stagingDir)
}
