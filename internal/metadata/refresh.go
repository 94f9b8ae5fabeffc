package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/titleparse"
)

// SeasonSource is the slice of the metadata API the refresher needs.
type SeasonSource interface {
	SeasonAnime(ctx context.Context, quarter, year int) ([]SeasonEntry, error)
}

// Refresher seeds and updates the catalog for one airing window.
type Refresher struct {
	st  *store.Store
	api SeasonSource
}

func NewRefresher(st *store.Store, api SeasonSource) *Refresher {
	return &Refresher{st: st, api: api}
}

// RefreshResult is the persisted task result of a catalog refresh.
type RefreshResult struct {
	Quarter  int `json:"quarter"`
	Year     int `json:"year"`
	Shows    int `json:"shows"`
	Episodes int `json:"episodes"`
}

// HandleRefreshCatalog is the refresh-catalog-window task handler. The
// payload names the quarter and year; every show the API reports for that
// window is upserted together with its episode schedule.
func (r *Refresher) HandleRefreshCatalog(ctx context.Context, task *models.Task) (interface{}, error) {
	var payload struct {
		Quarter int `json:"quarter"`
		Year    int `json:"year"`
	}
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if payload.Quarter < 1 || payload.Quarter > 4 || payload.Year == 0 {
		return nil, fmt.Errorf("payload must name a quarter (1..4) and a year")
	}

	entries, err := r.api.SeasonAnime(ctx, payload.Quarter, payload.Year)
	if err != nil {
		return nil, err
	}

	result := RefreshResult{Quarter: payload.Quarter, Year: payload.Year}
	for _, entry := range entries {
		episodes, err := r.importEntry(entry, payload.Quarter, payload.Year)
		if err != nil {
			log.Printf("Catalog refresh: importing %q: %v", canonicalTitle(entry), err)
			continue
		}
		result.Shows++
		result.Episodes += episodes
	}
	return result, nil
}

// importEntry upserts one show and its episode rows in a single transaction.
func (r *Refresher) importEntry(entry SeasonEntry, quarter, year int) (int, error) {
	title := canonicalTitle(entry)
	if title == "" {
		return 0, fmt.Errorf("entry has no usable title")
	}

	anime := &models.Anime{
		Title:        title,
		SeasonNumber: titleparse.Season(title),
		Quarter:      quarter,
		Year:         year,
		EpisodeCount: entry.Episodes,
		Status:       entry.Status,
		CoverURL:     entry.CoverImage.Large,
	}
	animeID, err := r.st.UpsertAnime(anime)
	if err != nil {
		return 0, err
	}

	tx, err := r.st.DB().Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	count := 0
	for _, node := range entry.AiringSchedule.Nodes {
		if node.Episode <= 0 {
			continue
		}
		var airDate *time.Time
		if node.AiringAt > 0 {
			t := time.Unix(node.AiringAt, 0)
			airDate = &t
		}
		if _, err := r.st.GetOrCreateEpisode(tx, animeID, node.Episode, airDate); err != nil {
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	// Only the single best-scoring alternate name becomes a search term.
	if alt := titleparse.BestAlternative(title, alternateCandidates(entry, title)); alt != "" {
		if err := r.st.AddAlternativeTitle(animeID, alt); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func canonicalTitle(entry SeasonEntry) string {
	if entry.Title.Romaji != "" {
		return entry.Title.Romaji
	}
	return entry.Title.English
}

func alternateCandidates(entry SeasonEntry, canonical string) []string {
	var candidates []string
	for _, c := range append([]string{entry.Title.English}, entry.Synonyms...) {
		if c != "" && c != canonical {
			candidates = append(candidates, c)
		}
	}
	return candidates
}
