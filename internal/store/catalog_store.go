package store

import (
	"database/sql"
	"time"

	"github.com/ryosa/hibiki/internal/models"
)

// UpsertAnime inserts an anime by title or refreshes its metadata if the
// title is already known. Returns the row id.
func (s *Store) UpsertAnime(a *models.Anime) (int64, error) {
	now := time.Now()
	var id int64
	err := s.db.QueryRow(`
        INSERT INTO animes (title, season_number, quarter, year, episode_count, status, cover_url, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(title) DO UPDATE SET
            season_number = excluded.season_number,
            quarter = excluded.quarter,
            year = excluded.year,
            episode_count = excluded.episode_count,
            status = excluded.status,
            cover_url = excluded.cover_url,
            updated_at = excluded.updated_at
        RETURNING id
    `, a.Title, a.SeasonNumber, a.Quarter, a.Year, a.EpisodeCount, a.Status, a.CoverURL, now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetAnime returns a single anime by id, or nil if it does not exist.
func (s *Store) GetAnime(id int64) (*models.Anime, error) {
	var a models.Anime
	err := s.db.QueryRow(`
        SELECT id, title, season_number, quarter, year, episode_count, status, auto_download, cover_url, created_at, updated_at
        FROM animes WHERE id = ?
    `, id).Scan(&a.ID, &a.Title, &a.SeasonNumber, &a.Quarter, &a.Year, &a.EpisodeCount, &a.Status, &a.AutoDownload, &a.CoverURL, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnimes returns the full catalog, newest season window first.
func (s *Store) ListAnimes() ([]*models.Anime, error) {
	rows, err := s.db.Query(`
        SELECT id, title, season_number, quarter, year, episode_count, status, auto_download, cover_url, created_at, updated_at
        FROM animes ORDER BY year DESC, quarter DESC, title
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var animes []*models.Anime
	for rows.Next() {
		var a models.Anime
		if err := rows.Scan(&a.ID, &a.Title, &a.SeasonNumber, &a.Quarter, &a.Year, &a.EpisodeCount, &a.Status, &a.AutoDownload, &a.CoverURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		animes = append(animes, &a)
	}
	return animes, rows.Err()
}

// SetAnimeAutoDownload flips the automatic download flag for an anime.
func (s *Store) SetAnimeAutoDownload(id int64, enabled bool) error {
	_, err := s.db.Exec("UPDATE animes SET auto_download = ?, updated_at = ? WHERE id = ?", enabled, time.Now(), id)
	return err
}

// ListAutoDownloadAnimes returns every anime flagged for automatic download.
func (s *Store) ListAutoDownloadAnimes() ([]*models.Anime, error) {
	rows, err := s.db.Query(`
        SELECT id, title, season_number, quarter, year, episode_count, status, auto_download, cover_url, created_at, updated_at
        FROM animes WHERE auto_download = 1 ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var animes []*models.Anime
	for rows.Next() {
		var a models.Anime
		if err := rows.Scan(&a.ID, &a.Title, &a.SeasonNumber, &a.Quarter, &a.Year, &a.EpisodeCount, &a.Status, &a.AutoDownload, &a.CoverURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		animes = append(animes, &a)
	}
	return animes, rows.Err()
}

// GetOrCreateEpisode finds the episode row for (anime, number) or creates it.
func (s *Store) GetOrCreateEpisode(tx *sql.Tx, animeID int64, number int, airDate *time.Time) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM episodes WHERE anime_id = ? AND number = ?", animeID, number).Scan(&id)
	if err == sql.ErrNoRows {
		res, err := tx.Exec("INSERT INTO episodes (anime_id, number, air_date) VALUES (?, ?, ?)", animeID, number, airDate)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddAlternativeTitle records an accepted alternate search title for an anime.
// Duplicate titles for the same anime are ignored.
func (s *Store) AddAlternativeTitle(animeID int64, title string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO alternative_titles (anime_id, title) VALUES (?, ?)", animeID, title)
	return err
}

// SearchTerms returns the canonical title plus all stored alternative titles
// for an anime, in stable order.
func (s *Store) SearchTerms(animeID int64) ([]string, error) {
	anime, err := s.GetAnime(animeID)
	if err != nil {
		return nil, err
	}
	if anime == nil {
		return nil, nil
	}

	terms := []string{anime.Title}
	rows, err := s.db.Query("SELECT title FROM alternative_titles WHERE anime_id = ? ORDER BY id", animeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// GetOrCreateGroup finds a release group by name or creates it.
func (s *Store) GetOrCreateGroup(name string) (*models.ReleaseGroup, error) {
	var g models.ReleaseGroup
	err := s.db.QueryRow(
		"SELECT id, name, external_id, enabled_default FROM release_groups WHERE name = ?", name,
	).Scan(&g.ID, &g.Name, &g.ExternalID, &g.EnabledDefault)
	if err == sql.ErrNoRows {
		res, err := s.db.Exec("INSERT INTO release_groups (name) VALUES (?)", name)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		return &models.ReleaseGroup{ID: id, Name: name, EnabledDefault: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// SetGroupExternalID stores the metadata-site identifier for a group.
func (s *Store) SetGroupExternalID(groupID int64, externalID string) error {
	_, err := s.db.Exec("UPDATE release_groups SET external_id = ? WHERE id = ?", externalID, groupID)
	return err
}

// GroupEnabledFor reports whether a group is enabled for an anime: the
// per-anime override wins, otherwise the group default applies.
func (s *Store) GroupEnabledFor(animeID, groupID int64) (bool, error) {
	var enabled bool
	err := s.db.QueryRow(
		"SELECT enabled FROM anime_release_groups WHERE anime_id = ? AND group_id = ?", animeID, groupID,
	).Scan(&enabled)
	if err == nil {
		return enabled, nil
	}
	if err != sql.ErrNoRows {
		return false, err
	}
	err = s.db.QueryRow("SELECT enabled_default FROM release_groups WHERE id = ?", groupID).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return enabled, err
}

// SetGroupOverride records a per-anime group enablement override.
func (s *Store) SetGroupOverride(animeID, groupID int64, enabled bool) error {
	_, err := s.db.Exec(`
        INSERT INTO anime_release_groups (anime_id, group_id, enabled) VALUES (?, ?, ?)
        ON CONFLICT(anime_id, group_id) DO UPDATE SET enabled = excluded.enabled
    `, animeID, groupID, enabled)
	return err
}
