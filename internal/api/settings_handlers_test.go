package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryosa/hibiki/internal/models"
)

func TestHandleGetSettings(t *testing.T) {
	server, _, _ := setupTestServer(t)
	router := server.Router()

	req, _ := http.NewRequest("GET", "/api/settings", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var settings models.Settings
	if err := json.Unmarshal(rr.Body.Bytes(), &settings); err != nil {
		t.Fatalf("Failed to unmarshal settings: %v", err)
	}
}

func TestHandleUpdateSettings(t *testing.T) {
	server, st, manager := setupTestServer(t)
	router := server.Router()

	t.Run("Success", func(t *testing.T) {
		body := bytes.NewBufferString(`{
			"download_root": "/media/anime",
			"sort_downloads": true,
			"max_download_kbps": 2048,
			"max_upload_kbps": 512
		}`)
		req, _ := http.NewRequest("PUT", "/api/settings", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}

		stored, err := st.GetSettings()
		if err != nil {
			t.Fatalf("Failed to read settings back: %v", err)
		}
		if stored.MaxDownloadKbps != 2048 || !stored.SortDownloads {
			t.Errorf("settings were not persisted: %+v", stored)
		}

		// The new ceilings are pushed to the download manager immediately.
		if len(manager.applied) != 1 || manager.applied[0].MaxDownloadKbps != 2048 {
			t.Errorf("settings were not applied to the manager")
		}
	})

	t.Run("Negative Ceiling", func(t *testing.T) {
		body := bytes.NewBufferString(`{"max_download_kbps": -1}`)
		req, _ := http.NewRequest("PUT", "/api/settings", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
		}
	})
}
