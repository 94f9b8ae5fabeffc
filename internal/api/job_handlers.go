// A handler file for the scheduled job endpoints. Every mutation reloads the
// scheduler so the armed triggers always mirror the table.

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ryosa/hibiki/internal/models"
)

var validJobTypes = map[string]bool{
	models.TaskScanReleases:      true,
	models.TaskRefreshCatalog:    true,
	models.TaskScanFolder:        true,
	models.TaskScanAutoDownload:  true,
	models.TaskQueueAutoDownload: true,
}

// JobPayload is the expected structure for creating or updating a job.
type JobPayload struct {
	Name     string          `json:"name"`
	JobType  string          `json:"job_type"`
	CronExpr string          `json:"cron_expr"`
	Enabled  bool            `json:"enabled"`
	Config   json.RawMessage `json:"config,omitempty"`
}

func (p *JobPayload) validate() string {
	if p.Name == "" {
		return "Job name is required"
	}
	if !validJobTypes[p.JobType] {
		return "Unknown job type"
	}
	if p.CronExpr == "" {
		return "Cron expression is required"
	}
	return ""
}

func (s *Server) jobFromURL(w http.ResponseWriter, r *http.Request) *models.ScheduledJob {
	jobID, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid job ID")
		return nil
	}
	job, err := s.store.GetJob(jobID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return nil
	}
	if job == nil {
		RespondWithError(w, http.StatusNotFound, "Job not found")
		return nil
	}
	return job
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(false)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}
	if jobs == nil {
		jobs = []*models.ScheduledJob{}
	}
	RespondWithJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobFromURL(w, r)
	if job == nil {
		return
	}
	RespondWithJSON(w, http.StatusOK, job)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var payload JobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if msg := payload.validate(); msg != "" {
		RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	job := &models.ScheduledJob{
		Name:     payload.Name,
		JobType:  payload.JobType,
		CronExpr: payload.CronExpr,
		Enabled:  payload.Enabled,
		Config:   payload.Config,
	}
	if err := s.store.CreateJob(job); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}
	s.reloadSchedule()
	RespondWithJSON(w, http.StatusCreated, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobFromURL(w, r)
	if job == nil {
		return
	}

	var payload JobPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if msg := payload.validate(); msg != "" {
		RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	job.Name = payload.Name
	job.JobType = payload.JobType
	job.CronExpr = payload.CronExpr
	job.Enabled = payload.Enabled
	job.Config = payload.Config
	if err := s.store.UpdateJob(job); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to update job")
		return
	}
	s.reloadSchedule()
	RespondWithJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobFromURL(w, r)
	if job == nil {
		return
	}
	if err := s.store.DeleteJob(job.ID); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}
	s.reloadSchedule()
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Job deleted"})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobFromURL(w, r)
	if job == nil {
		return
	}

	task, err := s.schedule.Execute(job)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondWithTask(w, task)
}

// reloadSchedule re-arms the triggers after a job edit. The table is already
// updated; a reload failure only delays the trigger change until restart.
func (s *Server) reloadSchedule() {
	if err := s.schedule.Reload(); err != nil {
		log.Printf("Failed to reload scheduler: %v", err)
	}
}
