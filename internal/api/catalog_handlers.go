// A handler file for the catalog endpoints.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ryosa/hibiki/internal/models"
)

func (s *Server) handleListAnimes(w http.ResponseWriter, r *http.Request) {
	animes, err := s.store.ListAnimes()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve catalog")
		return
	}
	if animes == nil {
		animes = []*models.Anime{}
	}
	RespondWithJSON(w, http.StatusOK, animes)
}

func (s *Server) handleGetAnime(w http.ResponseWriter, r *http.Request) {
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
	RespondWithJSON(w, http.StatusOK, anime)
}

func (s *Server) handleSetAutoDownload(w http.ResponseWriter, r *http.Request) {
	animeID, err := strconv.ParseInt(chi.URLParam(r, "animeID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid anime ID")
		return
	}

	var payload struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
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

	if err := s.store.SetAnimeAutoDownload(animeID, payload.Enabled); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to update anime")
		return
	}
	anime.AutoDownload = payload.Enabled
	RespondWithJSON(w, http.StatusOK, anime)
}
