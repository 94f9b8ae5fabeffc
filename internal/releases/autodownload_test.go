package releases

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/testutil"
)

type fakeEnqueuer struct {
	types    []string
	subjects []*int64
}

func (f *fakeEnqueuer) Enqueue(taskType string, subject *int64, payload interface{}) (*models.Task, error) {
	f.types = append(f.types, taskType)
	f.subjects = append(f.subjects, subject)
	return &models.Task{ID: uuid.NewString(), Type: taskType}, nil
}

type fakeStarter struct {
	started []string
	failOn  string
}

func (f *fakeStarter) StartTransfer(c *models.DownloadCandidate) error {
	if c.Link == f.failOn {
		return errors.New("bad magnet")
	}
	f.started = append(f.started, c.Link)
	return nil
}

func seedCandidate(t *testing.T, st *store.Store, animeTitle, link string, autoDownload bool) {
	t.Helper()
	id, err := st.UpsertAnime(&models.Anime{Title: animeTitle, SeasonNumber: 1})
	require.NoError(t, err)
	if autoDownload {
		_, err = st.DB().Exec("UPDATE animes SET auto_download = 1 WHERE id = ?", id)
		require.NoError(t, err)
	}

	tx, err := st.DB().Begin()
	require.NoError(t, err)
	episodeID, err := st.GetOrCreateEpisode(tx, id, 1, nil)
	require.NoError(t, err)
	_, err = st.InsertTorrent(tx, &models.Torrent{
		EpisodeID: episodeID,
		Title:     animeTitle + " - 01",
		Link:      link,
		Magnet:    "magnet:?xt=urn:btih:" + link,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func TestHandleScanCandidatesFansOut(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	seedCandidate(t, st, "Show A", "a1", true)
	seedCandidate(t, st, "Show B", "b1", true)
	seedCandidate(t, st, "Show C", "c1", false)

	queue := &fakeEnqueuer{}
	ad := NewAutoDownloader(st, queue, &fakeStarter{})

	out, err := ad.HandleScanCandidates(context.Background(), &models.Task{Type: models.TaskScanAutoDownload})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"scans_enqueued": 2}, out)

	// Two scans, then the transfer queueing task that runs after them.
	require.Equal(t, []string{
		models.TaskScanReleases,
		models.TaskScanReleases,
		models.TaskQueueAutoDownload,
	}, queue.types)
	require.NotNil(t, queue.subjects[0])
	require.NotNil(t, queue.subjects[1])
	assert.Nil(t, queue.subjects[2])
}

func TestHandleScanCandidatesNothingFlagged(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	queue := &fakeEnqueuer{}
	ad := NewAutoDownloader(st, queue, &fakeStarter{})

	out, err := ad.HandleScanCandidates(context.Background(), &models.Task{Type: models.TaskScanAutoDownload})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"scans_enqueued": 0}, out)
	assert.Empty(t, queue.types)
}

func TestHandleQueueTransfersStartsCandidates(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	seedCandidate(t, st, "Show A", "a1", true)
	seedCandidate(t, st, "Show B", "b1", true)
	seedCandidate(t, st, "Show C", "c1", false)

	starter := &fakeStarter{}
	ad := NewAutoDownloader(st, &fakeEnqueuer{}, starter)

	out, err := ad.HandleQueueTransfers(context.Background(), &models.Task{Type: models.TaskQueueAutoDownload})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"candidates": 2, "started": 2}, out)
	assert.ElementsMatch(t, []string{"a1", "b1"}, starter.started)
}

func TestHandleQueueTransfersSkipsFailures(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	seedCandidate(t, st, "Show A", "a1", true)
	seedCandidate(t, st, "Show B", "b1", true)

	starter := &fakeStarter{failOn: "a1"}
	ad := NewAutoDownloader(st, &fakeEnqueuer{}, starter)

	out, err := ad.HandleQueueTransfers(context.Background(), &models.Task{Type: models.TaskQueueAutoDownload})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"candidates": 2, "started": 1}, out)
	assert.Equal(t, []string{"b1"}, starter.started)
}

func TestHandleQueueTransfersSkipsAlreadyDownloaded(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	seedCandidate(t, st, "Show A", "a1", true)
	require.NoError(t, st.UpsertDownloadedFile("a1", "/media/Show A/ep1.mkv", nil))

	starter := &fakeStarter{}
	ad := NewAutoDownloader(st, &fakeEnqueuer{}, starter)

	out, err := ad.HandleQueueTransfers(context.Background(), &models.Task{Type: models.TaskQueueAutoDownload})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"candidates": 0, "started": 0}, out)
}
