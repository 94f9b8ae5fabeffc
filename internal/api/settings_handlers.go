// A handler file for the runtime-mutable settings endpoints.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ryosa/hibiki/internal/models"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve settings")
		return
	}
	RespondWithJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload models.Settings
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.MaxDownloadKbps < 0 || payload.MaxUploadKbps < 0 {
		RespondWithError(w, http.StatusBadRequest, "Rate ceilings must not be negative")
		return
	}

	if err := s.store.SaveSettings(&payload); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	// New rate ceilings take effect on running transfers immediately.
	s.manager.ApplySettings(&payload)

	settings, err := s.store.GetSettings()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve settings")
		return
	}
	RespondWithJSON(w, http.StatusOK, settings)
}
