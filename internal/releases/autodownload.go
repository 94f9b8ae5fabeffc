package releases

import (
	"context"
	"log"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
)

// Enqueuer is the slice of the task queue the auto-download handlers need.
type Enqueuer interface {
	Enqueue(taskType string, subject *int64, payload interface{}) (*models.Task, error)
}

// TransferStarter hands a matched release to the download manager.
type TransferStarter interface {
	StartTransfer(candidate *models.DownloadCandidate) error
}

// AutoDownloader implements the two auto-download task handlers: one that
// fans out release scans over every flagged show, and one that hands the
// resulting un-downloaded releases to the download manager.
type AutoDownloader struct {
	st      *store.Store
	queue   Enqueuer
	starter TransferStarter
}

func NewAutoDownloader(st *store.Store, queue Enqueuer, starter TransferStarter) *AutoDownloader {
	return &AutoDownloader{st: st, queue: queue, starter: starter}
}

// HandleScanCandidates is the scan-autodownload-candidates task handler.
// It enqueues one release scan per auto-download show, then a transfer
// queueing task; the single-worker queue guarantees the latter runs after
// every scan has finished.
func (a *AutoDownloader) HandleScanCandidates(ctx context.Context, task *models.Task) (interface{}, error) {
	animes, err := a.st.ListAutoDownloadAnimes()
	if err != nil {
		return nil, err
	}

	enqueued := 0
	for _, anime := range animes {
		id := anime.ID
		if _, err := a.queue.Enqueue(models.TaskScanReleases, &id, nil); err != nil {
			return nil, err
		}
		enqueued++
	}
	if enqueued > 0 {
		if _, err := a.queue.Enqueue(models.TaskQueueAutoDownload, nil, nil); err != nil {
			return nil, err
		}
	}
	return map[string]int{"scans_enqueued": enqueued}, nil
}

// HandleQueueTransfers is the queue-autodownload-transfers task handler.
// A candidate that fails to start is logged and skipped so one bad magnet
// cannot block the rest.
func (a *AutoDownloader) HandleQueueTransfers(ctx context.Context, task *models.Task) (interface{}, error) {
	candidates, err := a.st.ListAutoDownloadCandidates()
	if err != nil {
		return nil, err
	}

	started := 0
	for _, c := range candidates {
		if err := a.starter.StartTransfer(c); err != nil {
			log.Printf("Auto-download: starting %q: %v", c.Torrent.Title, err)
			continue
		}
		started++
	}
	return map[string]int{"candidates": len(candidates), "started": started}, nil
}
