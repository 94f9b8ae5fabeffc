package store

import (
	"database/sql"
	"time"

	"github.com/ryosa/hibiki/internal/models"
)

// GetCacheEntry returns the metadata-cache entry for a request URL, or nil.
// TTL checking belongs to the caller; an expired entry is simply overwritten
// by the next PutCacheEntry.
func (s *Store) GetCacheEntry(url string) (*models.MetadataCacheEntry, error) {
	var e models.MetadataCacheEntry
	err := s.db.QueryRow(
		"SELECT url, external_id, body, last_query_at FROM metadata_cache WHERE url = ?", url,
	).Scan(&e.URL, &e.ExternalID, &e.Body, &e.LastQueryAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutCacheEntry records the outcome of a lookup, overwriting any previous
// entry for the same URL. A nil external id is a valid negative result.
func (s *Store) PutCacheEntry(url string, externalID *string, body *string) error {
	_, err := s.db.Exec(`
        INSERT INTO metadata_cache (url, external_id, body, last_query_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(url) DO UPDATE SET
            external_id = excluded.external_id,
            body = excluded.body,
            last_query_at = excluded.last_query_at
    `, url, externalID, body, time.Now())
	return err
}
