// Package metadata talks to the catalog metadata API and seeds the local
// catalog with a season's shows. The API client is a stateless JSON
// request/response wrapper; all the interesting work happens in the refresh
// handler.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SeasonEntry is one show as reported by the metadata API.
type SeasonEntry struct {
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms   []string `json:"synonyms"`
	Episodes   int      `json:"episodes"`
	Status     string   `json:"status"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	AiringSchedule struct {
		Nodes []AiringNode `json:"nodes"`
	} `json:"airingSchedule"`
}

// AiringNode is one scheduled episode airing.
type AiringNode struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airingAt"`
}

type Client struct {
	client *http.Client
	url    string
}

func NewClient(apiURL string) *Client {
	return &Client{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    apiURL,
	}
}

const seasonQuery = `
query ($season: MediaSeason, $seasonYear: Int, $page: Int) {
  Page(page: $page, perPage: 50) {
    pageInfo { hasNextPage }
    media(season: $season, seasonYear: $seasonYear, type: ANIME, format_in: [TV, TV_SHORT]) {
      title { romaji english native }
      synonyms
      episodes
      status
      coverImage { large }
      airingSchedule(perPage: 50) { nodes { episode airingAt } }
    }
  }
}`

var seasonNames = map[int]string{1: "WINTER", 2: "SPRING", 3: "SUMMER", 4: "FALL"}

// SeasonAnime fetches every TV show airing in a quarter (1..4) of a year.
func (c *Client) SeasonAnime(ctx context.Context, quarter, year int) ([]SeasonEntry, error) {
	season, ok := seasonNames[quarter]
	if !ok {
		return nil, fmt.Errorf("metadata: invalid quarter %d", quarter)
	}

	var entries []SeasonEntry
	for page := 1; ; page++ {
		media, hasNext, err := c.fetchPage(ctx, season, year, page)
		if err != nil {
			return nil, err
		}
		entries = append(entries, media...)
		if !hasNext {
			return entries, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, season string, year, page int) ([]SeasonEntry, bool, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"query": seasonQuery,
		"variables": map[string]interface{}{
			"season":     season,
			"seasonYear": year,
			"page":       page,
		},
	})
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("metadata: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Page struct {
				PageInfo struct {
					HasNextPage bool `json:"hasNextPage"`
				} `json:"pageInfo"`
				Media []SeasonEntry `json:"media"`
			} `json:"Page"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, err
	}
	if len(body.Errors) > 0 {
		return nil, false, fmt.Errorf("metadata: %s", body.Errors[0].Message)
	}
	return body.Data.Page.Media, body.Data.Page.PageInfo.HasNextPage, nil
}
