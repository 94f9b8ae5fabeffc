// A handler file for the download manager endpoints.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ryosa/hibiki/internal/downloads"
)

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers := s.manager.List()
	if transfers == nil {
		transfers = []*downloads.Transfer{}
	}
	RespondWithJSON(w, http.StatusOK, transfers)
}

func (s *Server) handleTransferAction(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Action string `json:"action"`
		Link   string `json:"link"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Link == "" {
		RespondWithError(w, http.StatusBadRequest, "Transfer link is required")
		return
	}

	switch payload.Action {
	case "pause":
		s.manager.Pause(payload.Link)
	case "resume":
		s.manager.Resume(payload.Link)
	default:
		RespondWithError(w, http.StatusBadRequest, "Invalid action specified")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Action '" + payload.Action + "' applied"})
}
