// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ryosa/hibiki/internal/core"
	"github.com/ryosa/hibiki/internal/downloads"
	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/schedule"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/taskqueue"
	"github.com/ryosa/hibiki/internal/websocket"
)

// TransferManager is the slice of the download manager the API exposes.
type TransferManager interface {
	List() []*downloads.Transfer
	Pause(link string)
	Resume(link string)
	ApplySettings(settings *models.Settings)
}

// Server holds the dependencies for our API.
type Server struct {
	app      *core.App
	db       *sql.DB
	store    *store.Store
	queue    *taskqueue.Service
	schedule *schedule.Service
	manager  TransferManager
	hub      *websocket.Hub
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App, queue *taskqueue.Service, sched *schedule.Service, manager TransferManager, hub *websocket.Hub) *Server {
	return &Server{
		app:      app,
		db:       app.DB(),
		store:    store.New(app.DB()),
		queue:    queue,
		schedule: sched,
		manager:  manager,
		hub:      hub,
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		// Catalog Routes
		r.Get("/animes", s.handleListAnimes)
		r.Get("/animes/{animeID}", s.handleGetAnime)
		r.Put("/animes/{animeID}/auto-download", s.handleSetAutoDownload)
		r.Post("/animes/{animeID}/scan", s.handleScanAnime)
		r.Post("/catalog/refresh", s.handleRefreshCatalog)

		// Task polling
		r.Get("/tasks/{taskID}", s.handleGetTask)

		// Scheduled Job Routes
		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Put("/jobs/{jobID}", s.handleUpdateJob)
		r.Delete("/jobs/{jobID}", s.handleDeleteJob)
		r.Post("/jobs/{jobID}/run", s.handleRunJob)

		// Settings Routes
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)

		// Download Routes
		r.Get("/downloads", s.handleListTransfers)
		r.Post("/downloads/action", s.handleTransferAction)
		r.Post("/downloads/scan-folder", s.handleScanFolder)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if err := s.db.Ping(); err != nil {
				RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
				return
			}
			RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// WebSocket progress feed
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(s.hub, w, r)
		})
	})

	return r
}
