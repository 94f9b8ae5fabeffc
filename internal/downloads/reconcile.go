package downloads

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
)

// IncompleteResumer restarts the transfer behind a staged on-disk file.
type IncompleteResumer interface {
	ResumeIncomplete(link string) error
}

// Reconciler walks the download folder and syncs the file-to-release
// mappings with what is actually on disk. Safe to run repeatedly.
type Reconciler struct {
	st      *store.Store
	resumer IncompleteResumer
}

func NewReconciler(st *store.Store, resumer IncompleteResumer) *Reconciler {
	return &Reconciler{st: st, resumer: resumer}
}

// ReconcileResult is the persisted task result of a folder scan.
type ReconcileResult struct {
	Folder     string `json:"folder"`
	Removed    int    `json:"removed"`
	Mapped     int    `json:"mapped"`
	Incomplete int    `json:"incomplete"`
}

// HandleScanFolder is the scan-download-folder task handler. An empty
// payload folder falls back to the configured download root.
func (r *Reconciler) HandleScanFolder(ctx context.Context, task *models.Task) (interface{}, error) {
	var payload struct {
		Folder string `json:"folder"`
	}
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}
	if payload.Folder == "" {
		settings, err := r.st.GetSettings()
		if err != nil {
			return nil, err
		}
		payload.Folder = settings.DownloadRoot
	}
	if payload.Folder == "" {
		return nil, fmt.Errorf("no folder to scan")
	}
	return r.Reconcile(payload.Folder)
}

// Reconcile prunes stale mappings, maps loose files to known releases by
// case-insensitive name containment, and restarts transfers for files found
// inside a staging directory.
func (r *Reconciler) Reconcile(folder string) (*ReconcileResult, error) {
	result := &ReconcileResult{Folder: folder}

	if err := r.pruneStale(result); err != nil {
		return nil, err
	}

	titles, err := r.st.ListTorrentTitles()
	if err != nil {
		return nil, err
	}

	resumed := make(map[string]bool)
	walkErr := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Inaccessible entries are skipped, never fatal to the scan.
			log.Printf("Folder scan: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if insideStaging(path) {
			r.handleStagedFile(path, titles, resumed, result)
			return nil
		}

		existing, err := r.st.GetDownloadedFileByPath(path)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		if match := matchTitle(filepath.Base(path), titles); match != nil {
			animeID := match.AnimeID
			if err := r.st.UpsertDownloadedFile(match.Link, path, &animeID); err != nil {
				return err
			}
			result.Mapped++
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return result, nil
}

// pruneStale removes mappings whose file is gone from disk or whose release
// no longer exists in the catalog.
func (r *Reconciler) pruneStale(result *ReconcileResult) error {
	files, err := r.st.ListDownloadedFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		stale := false
		if _, err := os.Stat(f.FilePath); err != nil {
			stale = true
		} else if exists, err := r.st.TorrentLinkExists(f.TorrentLink); err != nil {
			return err
		} else if !exists {
			stale = true
		}
		if !stale {
			continue
		}
		if err := r.st.DeleteDownloadedFile(f.ID); err != nil {
			return err
		}
		result.Removed++
	}
	return nil
}

// handleStagedFile treats a file under a staging directory as an incomplete
// download: the matching transfer is resumed, never recorded as complete.
func (r *Reconciler) handleStagedFile(path string, titles []*models.TorrentTitle, resumed map[string]bool, result *ReconcileResult) {
	if filepath.Ext(path) == ".db" {
		return
	}
	match := matchTitle(filepath.Base(path), titles)
	if match == nil || resumed[match.Link] {
		return
	}
	resumed[match.Link] = true
	result.Incomplete++
	if r.resumer == nil {
		return
	}
	if err := r.resumer.ResumeIncomplete(match.Link); err != nil {
		log.Printf("Folder scan: resuming incomplete %q: %v", match.Title, err)
	}
}

func insideStaging(path string) bool {
	sep := string(os.PathSeparator)
	return strings.Contains(path, sep+StagingDirName+sep)
}

// matchTitle finds the first known release whose title and the file name
// contain each other, case-insensitively, ignoring the file extension.
func matchTitle(fileName string, titles []*models.TorrentTitle) *models.TorrentTitle {
	name := strings.ToLower(strings.TrimSuffix(fileName, filepath.Ext(fileName)))
	if name == "" {
		return nil
	}
	for _, t := range titles {
		title := strings.ToLower(t.Title)
		if strings.Contains(title, name) || strings.Contains(name, title) {
			return t
		}
	}
	return nil
}
