// Handlers for the async trigger endpoints. Each trigger enqueues exactly
// one task and responds with the task row so clients can poll it.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ryosa/hibiki/internal/models"
)

// respondWithTask writes the task with 202 while it is still pending. A
// deduplicated trigger can hand back a task that is already past that state.
func respondWithTask(w http.ResponseWriter, task *models.Task) {
	code := http.StatusAccepted
	if task.Status != models.TaskStatusPending {
		code = http.StatusOK
	}
	RespondWithJSON(w, code, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.queue.GetByID(chi.URLParam(r, "taskID"))
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve task")
		return
	}
	if task == nil {
		RespondWithError(w, http.StatusNotFound, "Task not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, task)
}

func (s *Server) handleScanAnime(w http.ResponseWriter, r *http.Request) {
	animeID, err := strconv.ParseInt(chi.URLParam(r, "animeID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid anime ID")
		return
	}

	anime, err := s.store.GetAnime(animeID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve anime")
		return
	}
	if anime == nil {
		RespondWithError(w, http.StatusNotFound, "Anime not found")
		return
	}

	task, err := s.queue.Enqueue(models.TaskScanReleases, &animeID, nil)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to enqueue scan")
		return
	}
	respondWithTask(w, task)
}

func (s *Server) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quarter int `json:"quarter"`
		Year    int `json:"year"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Quarter < 1 || payload.Quarter > 4 || payload.Year == 0 {
		RespondWithError(w, http.StatusBadRequest, "Quarter must be 1-4 and year must be set")
		return
	}

	task, err := s.queue.Enqueue(models.TaskRefreshCatalog, nil, payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to enqueue catalog refresh")
		return
	}
	respondWithTask(w, task)
}

func (s *Server) handleScanFolder(w http.ResponseWriter, r *http.Request) {
	// The folder is optional; the handler falls back to the configured
	// download root.
	var payload struct {
		Folder string `json:"folder"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	task, err := s.queue.Enqueue(models.TaskScanFolder, nil, payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to enqueue folder scan")
		return
	}
	respondWithTask(w, task)
}
