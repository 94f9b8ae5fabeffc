package store

import (
	"github.com/ryosa/hibiki/internal/models"
)

// GetSettings returns the singleton settings row.
func (s *Store) GetSettings() (*models.Settings, error) {
	var set models.Settings
	err := s.db.QueryRow(`
        SELECT download_root, sort_downloads, max_download_kbps, max_upload_kbps, updated_at
        FROM settings WHERE id = 1
    `).Scan(&set.DownloadRoot, &set.SortDownloads, &set.MaxDownloadKbps, &set.MaxUploadKbps, &set.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// EnsureDownloadRoot seeds the download root from the configured default when
// no root has been saved yet. A root the user already set is left alone.
func (s *Store) EnsureDownloadRoot(path string) error {
	_, err := s.db.Exec(`
        UPDATE settings SET download_root = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = 1 AND download_root = ''
    `, path)
	return err
}

// SaveSettings rewrites the singleton settings row.
func (s *Store) SaveSettings(set *models.Settings) error {
	_, err := s.db.Exec(`
        UPDATE settings
        SET download_root = ?, sort_downloads = ?, max_download_kbps = ?, max_upload_kbps = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = 1
    `, set.DownloadRoot, set.SortDownloads, set.MaxDownloadKbps, set.MaxUploadKbps)
	return err
}
