package store

import (
	"database/sql"
	"time"

	"github.com/ryosa/hibiki/internal/models"
)

// InsertTorrent records a matched release inside the given transaction.
// A duplicate link is silently ignored; the bool reports whether a new row
// was created.
func (s *Store) InsertTorrent(tx *sql.Tx, t *models.Torrent) (bool, error) {
	res, err := tx.Exec(`
        INSERT OR IGNORE INTO torrents (episode_id, group_id, title, link, magnet, published_at, resolved_by_checksum, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, t.EpisodeID, t.GroupID, t.Title, t.Link, t.Magnet, t.PublishedAt, t.ResolvedByChecksum, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountTorrentsForAnime returns how many releases are recorded for an anime.
// Zero means the next scan is the first one for this item.
func (s *Store) CountTorrentsForAnime(animeID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`
        SELECT COUNT(*) FROM torrents t
        JOIN episodes e ON t.episode_id = e.id
        WHERE e.anime_id = ?
    `, animeID).Scan(&n)
	return n, err
}

// TorrentLinkExists reports whether a release link is already recorded.
func (s *Store) TorrentLinkExists(link string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM torrents WHERE link = ?", link).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCandidateByLink returns a release joined with its show, or nil.
func (s *Store) GetCandidateByLink(link string) (*models.DownloadCandidate, error) {
	var c models.DownloadCandidate
	var published sql.NullTime
	err := s.db.QueryRow(`
        SELECT t.id, t.episode_id, t.group_id, t.title, t.link, t.magnet, t.published_at, t.resolved_by_checksum, t.created_at,
               a.id, a.title
        FROM torrents t
        JOIN episodes e ON t.episode_id = e.id
        JOIN animes a ON e.anime_id = a.id
        WHERE t.link = ?
    `, link).Scan(&c.Torrent.ID, &c.EpisodeID, &c.GroupID, &c.Torrent.Title, &c.Link, &c.Magnet,
		&published, &c.ResolvedByChecksum, &c.CreatedAt, &c.AnimeID, &c.AnimeTitle)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if published.Valid {
		c.PublishedAt = published.Time
	}
	return &c, nil
}

// ListTorrentTitles returns (title, link, anime id) for every known release,
// used by the folder reconciler to match loose files by name.
func (s *Store) ListTorrentTitles() ([]*models.TorrentTitle, error) {
	rows, err := s.db.Query(`
        SELECT t.title, t.link, e.anime_id FROM torrents t
        JOIN episodes e ON t.episode_id = e.id
        ORDER BY t.id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []*models.TorrentTitle
	for rows.Next() {
		var tt models.TorrentTitle
		if err := rows.Scan(&tt.Title, &tt.Link, &tt.AnimeID); err != nil {
			return nil, err
		}
		titles = append(titles, &tt)
	}
	return titles, rows.Err()
}

// ListAutoDownloadCandidates returns releases of auto-download animes whose
// group is enabled (per-anime override, else group default) and that have no
// downloaded file record yet.
func (s *Store) ListAutoDownloadCandidates() ([]*models.DownloadCandidate, error) {
	rows, err := s.db.Query(`
        SELECT t.id, t.episode_id, t.group_id, t.title, t.link, t.magnet, t.published_at, t.resolved_by_checksum, t.created_at,
               a.id, a.title
        FROM torrents t
        JOIN episodes e ON t.episode_id = e.id
        JOIN animes a ON e.anime_id = a.id
        LEFT JOIN release_groups g ON t.group_id = g.id
        LEFT JOIN anime_release_groups arg ON arg.anime_id = a.id AND arg.group_id = t.group_id
        WHERE a.auto_download = 1
          AND NOT EXISTS (SELECT 1 FROM downloaded_files d WHERE d.torrent_link = t.link)
          AND (t.group_id IS NULL OR COALESCE(arg.enabled, g.enabled_default) = 1)
        ORDER BY t.id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*models.DownloadCandidate
	for rows.Next() {
		var c models.DownloadCandidate
		var published sql.NullTime
		if err := rows.Scan(&c.Torrent.ID, &c.EpisodeID, &c.GroupID, &c.Torrent.Title, &c.Link, &c.Magnet,
			&published, &c.ResolvedByChecksum, &c.CreatedAt, &c.AnimeID, &c.AnimeTitle); err != nil {
			return nil, err
		}
		if published.Valid {
			c.PublishedAt = published.Time
		}
		candidates = append(candidates, &c)
	}
	return candidates, rows.Err()
}
