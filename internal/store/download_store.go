package store

import (
	"database/sql"
	"time"

	"github.com/ryosa/hibiki/internal/models"
)

// UpsertDownloadedFile records a file-to-release mapping. A later rescan of
// the same path or the same link updates the existing row instead of
// inserting a duplicate.
func (s *Store) UpsertDownloadedFile(link, path string, animeID *int64) error {
	now := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// The link and the path each carry a unique constraint, and they can match
	// two different rows (a moved file next to a re-downloaded one). Clear both
	// and insert a single fresh mapping.
	if _, err := tx.Exec(`
        DELETE FROM downloaded_files WHERE torrent_link = ? OR file_path = ?
    `, link, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`
        INSERT INTO downloaded_files (torrent_link, file_path, anime_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
    `, link, path, animeID, now, now); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDownloadedFiles returns every recorded file mapping.
func (s *Store) ListDownloadedFiles() ([]*models.DownloadedFile, error) {
	rows, err := s.db.Query(`
        SELECT id, torrent_link, file_path, anime_id, created_at, updated_at
        FROM downloaded_files ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*models.DownloadedFile
	for rows.Next() {
		var f models.DownloadedFile
		if err := rows.Scan(&f.ID, &f.TorrentLink, &f.FilePath, &f.AnimeID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// GetDownloadedFileByPath returns the mapping for a path, or nil.
func (s *Store) GetDownloadedFileByPath(path string) (*models.DownloadedFile, error) {
	var f models.DownloadedFile
	err := s.db.QueryRow(`
        SELECT id, torrent_link, file_path, anime_id, created_at, updated_at
        FROM downloaded_files WHERE file_path = ?
    `, path).Scan(&f.ID, &f.TorrentLink, &f.FilePath, &f.AnimeID, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteDownloadedFile removes a stale mapping.
func (s *Store) DeleteDownloadedFile(id int64) error {
	_, err := s.db.Exec("DELETE FROM downloaded_files WHERE id = ?", id)
	return err
}
