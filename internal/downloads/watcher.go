// This file implements a file system watcher for the download folder.
// OS-level events are debounced into a single folder-scan task so that a
// burst of file moves triggers one reconciliation, not dozens.

package downloads

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ryosa/hibiki/internal/models"
)

// FolderScanEnqueuer enqueues the scan-download-folder task. The task
// queue's dedup makes repeated triggers for the same folder harmless.
type FolderScanEnqueuer interface {
	Enqueue(taskType string, subject *int64, payload interface{}) (*models.Task, error)
}

// Watcher watches the download folder and schedules a reconciliation scan
// after changes settle.
type Watcher struct {
	folder        string
	queue         FolderScanEnqueuer
	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
}

func NewWatcher(folder string, queue FolderScanEnqueuer) *Watcher {
	return &Watcher{
		folder:        folder,
		queue:         queue,
		debounceDelay: 2 * time.Second,
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching the download folder recursively.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	err = filepath.WalkDir(w.folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Files are watched via their parent directory.
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	log.Printf("Folder watcher started for %s", w.folder)
	go w.processEvents()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Folder watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Chmod fires when folders are merely opened or read; ignore it.
	if event.Op == fsnotify.Chmod {
		return
	}
	relevant := event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
	if !relevant {
		return
	}

	// New directories join the watch list.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watcher.Add(event.Name)
		}
	}

	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.triggerScan)
	w.mu.Unlock()
}

func (w *Watcher) triggerScan() {
	_, err := w.queue.Enqueue(models.TaskScanFolder, nil, map[string]string{"folder": w.folder})
	if err != nil {
		log.Printf("Folder watcher: enqueueing scan: %v", err)
	}
}
