// Package releases turns raw indexer search results into catalog rows. The
// pipeline searches once per known title of a show, gates each candidate on
// an exact name match and season consistency, and optionally resolves the
// authoritative episode through the metadata site's checksum listing.
package releases

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/ryosa/hibiki/internal/indexer"
	"github.com/ryosa/hibiki/internal/metasite"
	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/titleparse"
)

// Searcher is the slice of the indexer client the scanner needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]indexer.Release, error)
}

// Resolver is the slice of the metadata-site client used for checksum
// enrichment.
type Resolver interface {
	ResolveGroupID(ctx context.Context, groupName string) (*string, error)
	GroupReleases(ctx context.Context, groupID string) (map[string]metasite.ReleaseFact, error)
}

// Scanner executes release scans for single shows.
type Scanner struct {
	st       *store.Store
	searcher Searcher
	resolver Resolver
}

func NewScanner(st *store.Store, searcher Searcher, resolver Resolver) *Scanner {
	return &Scanner{st: st, searcher: searcher, resolver: resolver}
}

// ScanResult is the persisted task result of one release scan.
type ScanResult struct {
	AnimeID    int64 `json:"anime_id"`
	Candidates int   `json:"candidates"`
	Accepted   int   `json:"accepted"`
	Rejected   int   `json:"rejected"`
	Duplicates int   `json:"duplicates"`
}

// candidate carries a release through the matching gates.
type candidate struct {
	release  indexer.Release
	episode  int
	season   int
	group    string
	checksum string
	resolved bool
}

// HandleScanReleases is the scan-releases-for-item task handler. The task
// subject is the anime id.
func (s *Scanner) HandleScanReleases(ctx context.Context, task *models.Task) (interface{}, error) {
	if task.SubjectID == nil {
		return nil, fmt.Errorf("scan task has no anime id")
	}
	anime, err := s.st.GetAnime(*task.SubjectID)
	if err != nil {
		return nil, err
	}
	if anime == nil {
		return nil, fmt.Errorf("anime %d does not exist", *task.SubjectID)
	}
	return s.Scan(ctx, anime)
}

// Scan searches the indexer for every known title of the show and imports
// the candidates that survive matching. Safe to re-run: duplicate links are
// skipped, not re-inserted.
func (s *Scanner) Scan(ctx context.Context, anime *models.Anime) (*ScanResult, error) {
	terms, err := s.st.SearchTerms(anime.ID)
	if err != nil {
		return nil, err
	}

	// The first scan for a show enriches every checksummed candidate
	// through the metadata site; later scans only do so to settle season
	// conflicts.
	known, err := s.st.CountTorrentsForAnime(anime.ID)
	if err != nil {
		return nil, err
	}
	exhaustive := known == 0

	releases, err := s.searchAll(ctx, terms)
	if err != nil {
		return nil, err
	}

	normalizedTerms := make(map[string]bool, len(terms))
	for _, t := range terms {
		normalizedTerms[titleparse.Normalize(t)] = true
	}

	result := &ScanResult{AnimeID: anime.ID, Candidates: len(releases)}
	for _, release := range releases {
		c, ok := s.match(ctx, anime, release, normalizedTerms, exhaustive)
		if !ok {
			result.Rejected++
			continue
		}
		inserted, err := s.importCandidate(anime.ID, c)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Accepted++
		} else {
			result.Duplicates++
		}
	}
	return result, nil
}

// searchAll runs one indexer search per term in parallel and merges the
// results, deduplicated by link. The indexer client bounds how many of
// these actually run concurrently.
func (s *Scanner) searchAll(ctx context.Context, terms []string) ([]indexer.Release, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		byLink   = make(map[string]indexer.Release)
		order    []string
	)
	for _, term := range terms {
		wg.Add(1)
		go func(term string) {
			defer wg.Done()
			releases, err := s.searcher.Search(ctx, term)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("searching %q: %w", term, err)
				}
				return
			}
			for _, r := range releases {
				if _, seen := byLink[r.Link]; seen {
					continue
				}
				byLink[r.Link] = r
				order = append(order, r.Link)
			}
		}(term)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Strings(order)
	releases := make([]indexer.Release, 0, len(order))
	for _, link := range order {
		releases = append(releases, byLink[link])
	}
	return releases, nil
}

// match runs a single candidate through the gates. A false return means the
// candidate is dropped; drops are never errors.
func (s *Scanner) match(ctx context.Context, anime *models.Anime, release indexer.Release, terms map[string]bool, exhaustive bool) (candidate, bool) {
	c := candidate{release: release, season: 1}

	// Exact-name gate: the segment before the episode marker must equal one
	// of the search terms once both are normalized. This drops unrelated
	// shows that merely share a rare word.
	name := titleparse.Normalize(titleparse.NameBeforeEpisode(release.Title))
	if !terms[name] {
		return c, false
	}

	episode, ok := titleparse.Episode(release.Title)
	if !ok {
		return c, false
	}
	c.episode = episode
	c.season = titleparse.Season(release.Title)
	c.group, _ = titleparse.Group(release.Title)
	c.checksum, _ = titleparse.Checksum(release.Title)

	seasonConflict := c.season != anime.SeasonNumber
	if exhaustive || seasonConflict {
		s.enrich(ctx, &c)
	}

	// Season-consistency gate: a conflicting season is an outright drop
	// unless the checksum listing authoritatively resolved the candidate.
	if !c.resolved && c.season != anime.SeasonNumber {
		return c, false
	}
	return c, true
}

// enrich resolves the candidate's true episode and season from the metadata
// site's per-group release listing, keyed by checksum. Enrichment failures
// only mean the candidate stays title-parsed.
func (s *Scanner) enrich(ctx context.Context, c *candidate) {
	if c.group == "" || c.checksum == "" {
		return
	}
	group, err := s.st.GetOrCreateGroup(c.group)
	if err != nil {
		log.Printf("Scan: resolving group %q: %v", c.group, err)
		return
	}

	externalID := group.ExternalID
	if externalID == nil {
		externalID, err = s.resolver.ResolveGroupID(ctx, group.Name)
		if err != nil {
			log.Printf("Scan: resolving group %q on metadata site: %v", group.Name, err)
			return
		}
		if externalID == nil {
			return
		}
		if err := s.st.SetGroupExternalID(group.ID, *externalID); err != nil {
			log.Printf("Scan: storing external id for group %q: %v", group.Name, err)
		}
	}

	facts, err := s.resolver.GroupReleases(ctx, *externalID)
	if err != nil {
		log.Printf("Scan: fetching releases of group %q: %v", group.Name, err)
		return
	}
	fact, ok := facts[c.checksum]
	if !ok {
		return
	}
	c.episode = fact.Episode
	c.season = fact.Season
	c.resolved = true
}

// importCandidate writes the episode row and the torrent row in one
// transaction. Returns false when the link was already recorded.
func (s *Scanner) importCandidate(animeID int64, c candidate) (bool, error) {
	var groupID *int64
	if c.group != "" {
		group, err := s.st.GetOrCreateGroup(c.group)
		if err != nil {
			return false, err
		}
		groupID = &group.ID
	}

	tx, err := s.st.DB().Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	episodeID, err := s.st.GetOrCreateEpisode(tx, animeID, c.episode, nil)
	if err != nil {
		return false, err
	}

	inserted, err := s.st.InsertTorrent(tx, &models.Torrent{
		EpisodeID:          episodeID,
		GroupID:            groupID,
		Title:              c.release.Title,
		Link:               c.release.Link,
		Magnet:             c.release.Magnet,
		PublishedAt:        c.release.PublishedAt,
		ResolvedByChecksum: c.resolved,
	})
	if err != nil {
		return false, err
	}
	return inserted, tx.Commit()
}
