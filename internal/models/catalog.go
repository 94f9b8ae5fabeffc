// This file defines the core data structures (models) for the catalog:
// tracked anime, their episodes, release groups and discovered torrents.

package models

import "time"

// Anime represents a single tracked show.
type Anime struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	SeasonNumber int       `json:"season_number"`
	Quarter      int       `json:"quarter"` // 1..4, the airing quarter of the year
	Year         int       `json:"year"`
	EpisodeCount int       `json:"episode_count"`
	Status       string    `json:"status"` // e.g. "airing", "finished", "upcoming"
	AutoDownload bool      `json:"auto_download"`
	CoverURL     string    `json:"cover_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Episode represents a single episode of an anime. Unique per (anime, number).
type Episode struct {
	ID      int64      `json:"id"`
	AnimeID int64      `json:"anime_id"`
	Number  int        `json:"number"`
	AirDate *time.Time `json:"air_date,omitempty"`
}

// ReleaseGroup is the publishing group credited in release titles.
type ReleaseGroup struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	ExternalID     *string `json:"external_id,omitempty"` // metadata-site identifier, nil if unresolved
	EnabledDefault bool    `json:"enabled_default"`
}

// Torrent is one discovered release candidate that survived matching,
// linked to an episode and optionally to a release group.
type Torrent struct {
	ID                 int64     `json:"id"`
	EpisodeID          int64     `json:"episode_id"`
	GroupID            *int64    `json:"group_id,omitempty"`
	Title              string    `json:"title"`
	Link               string    `json:"link"`
	Magnet             string    `json:"magnet,omitempty"`
	PublishedAt        time.Time `json:"published_at"`
	ResolvedByChecksum bool      `json:"resolved_by_checksum"`
	CreatedAt          time.Time `json:"created_at"`
}

// DownloadCandidate is a release ready to be handed to the download
// manager, joined with the show it belongs to.
type DownloadCandidate struct {
	Torrent
	AnimeID    int64  `json:"anime_id"`
	AnimeTitle string `json:"anime_title"`
}

// TorrentTitle is the slim projection the folder reconciler matches file
// names against.
type TorrentTitle struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	AnimeID int64  `json:"anime_id"`
}

// AlternativeTitle is an accepted alternate name for an anime, used as an
// extra search term. Unique per (anime, title).
type AlternativeTitle struct {
	ID      int64  `json:"id"`
	AnimeID int64  `json:"anime_id"`
	Title   string `json:"title"`
}

// DownloadedFile maps a file on disk to the release it came from.
// The same path or the same link is an update, never a duplicate row.
type DownloadedFile struct {
	ID          int64     `json:"id"`
	TorrentLink string    `json:"torrent_link"`
	FilePath    string    `json:"file_path"`
	AnimeID     *int64    `json:"anime_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MetadataCacheEntry records the outcome of a metadata-site lookup, keyed by
// the exact request URL. A nil ExternalID is a valid negative result.
type MetadataCacheEntry struct {
	URL         string    `json:"url"`
	ExternalID  *string   `json:"external_id,omitempty"`
	Body        *string   `json:"body,omitempty"`
	LastQueryAt time.Time `json:"last_query_at"`
}

// Settings is the singleton runtime configuration row.
// A zero rate ceiling means unlimited.
type Settings struct {
	DownloadRoot    string    `json:"download_root"`
	SortDownloads   bool      `json:"sort_downloads"` // move completed files into per-anime folders
	MaxDownloadKbps int64     `json:"max_download_kbps"`
	MaxUploadKbps   int64     `json:"max_upload_kbps"`
	UpdatedAt       time.Time `json:"updated_at"`
}
