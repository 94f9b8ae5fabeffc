package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeasonAnimePaginates(t *testing.T) {
	var variables []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string                 `json:"query"`
			Variables map[string]interface{} `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		variables = append(variables, req.Variables)

		page := int(req.Variables["page"].(float64))
		hasNext := page < 2
		fmt.Fprintf(w, `{"data":{"Page":{"pageInfo":{"hasNextPage":%t},"media":[
            {"title":{"romaji":"Show %d"},"episodes":12,"status":"RELEASING"}
        ]}}}`, hasNext, page)
	}))
	defer srv.Close()

	entries, err := NewClient(srv.URL).SeasonAnime(context.Background(), 3, 2025)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Show 1", entries[0].Title.Romaji)
	assert.Equal(t, "Show 2", entries[1].Title.Romaji)

	require.Len(t, variables, 2)
	assert.Equal(t, "SUMMER", variables[0]["season"])
	assert.Equal(t, float64(2025), variables[0]["seasonYear"])
}

func TestSeasonAnimeRejectsInvalidQuarter(t *testing.T) {
	_, err := NewClient("http://unused").SeasonAnime(context.Background(), 5, 2025)
	assert.Error(t, err)
}

func TestSeasonAnimeSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"rate limited"}]}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).SeasonAnime(context.Background(), 1, 2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
