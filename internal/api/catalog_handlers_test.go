package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryosa/hibiki/internal/models"
)

func TestHandleListAnimes(t *testing.T) {
	server, st, _ := setupTestServer(t)
	router := server.Router()

	t.Run("Empty Catalog", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/animes", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		if body := rr.Body.String(); body != "[]" {
			t.Errorf("expected empty array, got %s", body)
		}
	})

	t.Run("With Entries", func(t *testing.T) {
		persistAnime(t, st, "Dandadan")
		persistAnime(t, st, "Frieren")

		req, _ := http.NewRequest("GET", "/api/animes", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		var animes []models.Anime
		if err := json.Unmarshal(rr.Body.Bytes(), &animes); err != nil {
			t.Fatalf("Failed to unmarshal catalog: %v", err)
		}
		if len(animes) != 2 {
			t.Errorf("expected 2 animes, got %d", len(animes))
		}
	})
}

func TestHandleGetAnime(t *testing.T) {
	server, st, _ := setupTestServer(t)
	router := server.Router()
	animeID := persistAnime(t, st, "Dandadan")

	t.Run("Success", func(t *testing.T) {
		req, _ := http.NewRequest("GET", fmt.Sprintf("/api/animes/%d", animeID), nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
		var anime models.Anime
		if err := json.Unmarshal(rr.Body.Bytes(), &anime); err != nil {
			t.Fatalf("Failed to unmarshal anime: %v", err)
		}
		if anime.Title != "Dandadan" {
			t.Errorf("wrong anime returned: %+v", anime)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/animes/999", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusNotFound)
		}
	})
}

func TestHandleSetAutoDownload(t *testing.T) {
	server, st, _ := setupTestServer(t)
	router := server.Router()
	animeID := persistAnime(t, st, "Dandadan")

	body := bytes.NewBufferString(`{"enabled": true}`)
	req, _ := http.NewRequest("PUT", fmt.Sprintf("/api/animes/%d/auto-download", animeID), body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	stored, err := st.GetAnime(animeID)
	if err != nil {
		t.Fatalf("Failed to read anime back: %v", err)
	}
	if !stored.AutoDownload {
		t.Errorf("auto download flag was not persisted")
	}

	flagged, err := st.ListAutoDownloadAnimes()
	if err != nil {
		t.Fatalf("Failed to list flagged animes: %v", err)
	}
	if len(flagged) != 1 {
		t.Errorf("expected 1 flagged anime, got %d", len(flagged))
	}
}
