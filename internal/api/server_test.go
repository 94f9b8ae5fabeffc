package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryosa/hibiki/internal/api"
	"github.com/ryosa/hibiki/internal/config"
	"github.com/ryosa/hibiki/internal/core"
	"github.com/ryosa/hibiki/internal/downloads"
	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/schedule"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/taskqueue"
	"github.com/ryosa/hibiki/internal/testutil"
	"github.com/ryosa/hibiki/internal/websocket"
)

// fakeManager stands in for the download manager so handler tests never touch
// the torrent client.
type fakeManager struct {
	transfers []*downloads.Transfer
	paused    []string
	resumed   []string
	applied   []*models.Settings
}

func (f *fakeManager) List() []*downloads.Transfer { return f.transfers }
func (f *fakeManager) Pause(link string)           { f.paused = append(f.paused, link) }
func (f *fakeManager) Resume(link string)          { f.resumed = append(f.resumed, link) }

func (f *fakeManager) ApplySettings(settings *models.Settings) {
	f.applied = append(f.applied, settings)
}

// setupTestServer wires a server against an in-memory database. The task
// queue has handlers registered but no running worker, so enqueued tasks
// stay pending and handlers can assert on the 202 path.
func setupTestServer(t *testing.T) (*api.Server, *store.Store, *fakeManager) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	st := store.New(db)
	app := core.NewWith(&config.Config{}, db)

	hub := websocket.NewHub()
	go hub.Run()

	queue := taskqueue.New(st, nil)
	noop := func(ctx context.Context, task *models.Task) (interface{}, error) { return nil, nil }
	for _, taskType := range []string{
		models.TaskScanReleases,
		models.TaskRefreshCatalog,
		models.TaskScanFolder,
		models.TaskScanAutoDownload,
		models.TaskQueueAutoDownload,
	} {
		queue.Register(taskType, noop)
	}

	manager := &fakeManager{}
	server := api.NewServer(app, queue, schedule.New(st, queue), manager, hub)
	return server, st, manager
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)
	router := server.Router()

	req, _ := http.NewRequest("GET", "/api/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
}
