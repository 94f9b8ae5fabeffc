// Package metasite scrapes the metadata authority used to resolve release
// groups and authoritative per-file episode/season facts. The site requires
// a logged-in session and tolerates at most one request per second, so all
// calls funnel through a single-slot rate limiter and every resolution is
// cached, including misses.
package metasite

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/titleparse"
)

// Cache lifetimes per lookup kind. Identifier resolutions change rarely;
// release listings grow while a season airs.
const (
	idCacheTTL   = 7 * 24 * time.Hour
	bodyCacheTTL = 6 * time.Hour
)

const loginPollInterval = 100 * time.Millisecond

// ReleaseFact is one authoritative row from a group's release listing.
type ReleaseFact struct {
	Checksum string
	Episode  int
	Season   int
}

type Client struct {
	st       *store.Store
	client   *http.Client
	limiter  *rate.Limiter
	baseURL  string
	username string
	password string

	mu        sync.Mutex // guards the login flags below
	loggingIn bool
	loggedIn  bool

	now func() time.Time
}

func New(st *store.Store, baseURL, username, password string) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		st:       st,
		client:   &http.Client{Timeout: 30 * time.Second, Jar: jar},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		now:      time.Now,
	}
	return c
}

// ResolveGroupID looks up the site identifier for a release-group name.
// A nil result with a nil error means the site has no such group; that
// outcome is cached just like a hit so the name is not re-queried for a week.
func (c *Client) ResolveGroupID(ctx context.Context, groupName string) (*string, error) {
	lookupURL := fmt.Sprintf("%s/groups?search=%s", c.baseURL, url.QueryEscape(groupName))

	if entry, err := c.st.GetCacheEntry(lookupURL); err != nil {
		return nil, err
	} else if entry != nil && c.now().Sub(entry.LastQueryAt) < idCacheTTL {
		return entry.ExternalID, nil
	}

	doc, err := c.fetchDocument(ctx, lookupURL)
	if err != nil {
		return nil, err
	}

	var id *string
	doc.Find("table.group-list tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		link := row.Find("td.group-name a")
		if !strings.EqualFold(strings.TrimSpace(link.Text()), groupName) {
			return true
		}
		if href, ok := link.Attr("href"); ok {
			if gid := lastPathSegment(href); gid != "" {
				id = &gid
				return false
			}
		}
		return true
	})

	if err := c.st.PutCacheEntry(lookupURL, id, nil); err != nil {
		return nil, err
	}
	return id, nil
}

// GroupReleases returns the group's release listing keyed by checksum.
// The raw page body is cached so repeated enrichment passes within a few
// hours do not re-hit the site.
func (c *Client) GroupReleases(ctx context.Context, groupID string) (map[string]ReleaseFact, error) {
	listURL := fmt.Sprintf("%s/group/%s/releases", c.baseURL, url.PathEscape(groupID))

	if entry, err := c.st.GetCacheEntry(listURL); err != nil {
		return nil, err
	} else if entry != nil && entry.Body != nil && c.now().Sub(entry.LastQueryAt) < bodyCacheTTL {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(*entry.Body))
		if err != nil {
			return nil, err
		}
		return parseReleaseList(doc), nil
	}

	body, err := c.fetchBody(ctx, listURL)
	if err != nil {
		return nil, err
	}
	if err := c.st.PutCacheEntry(listURL, &groupID, &body); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	return parseReleaseList(doc), nil
}

func parseReleaseList(doc *goquery.Document) map[string]ReleaseFact {
	facts := make(map[string]ReleaseFact)
	doc.Find("table.release-list tbody tr").Each(func(i int, row *goquery.Selection) {
		name := strings.TrimSpace(row.Find("td.filename").Text())
		checksum, ok := titleparse.Checksum(name)
		if !ok {
			return
		}
		episode, err := strconv.Atoi(strings.TrimSpace(row.Find("td.episode").Text()))
		if err != nil {
			return
		}
		season := 1
		if n, err := strconv.Atoi(strings.TrimSpace(row.Find("td.season").Text())); err == nil && n > 0 {
			season = n
		}
		facts[checksum] = ReleaseFact{Checksum: checksum, Episode: episode, Season: season}
	})
	return facts
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.fetchBody(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

// fetchBody performs one rate-limited, session-authenticated GET. A page
// that comes back as a login form means the session expired; it is rebuilt
// once and the fetch retried.
func (c *Client) fetchBody(ctx context.Context, pageURL string) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.ensureSession(ctx); err != nil {
			return "", err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", err
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
			strings.Contains(string(raw), `id="login-form"`) {
			c.invalidateSession()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("metasite: unexpected status %d for %s", resp.StatusCode, pageURL)
		}
		return string(raw), nil
	}
	return "", fmt.Errorf("metasite: session rejected twice for %s", pageURL)
}

// ensureSession logs in lazily. Only one login attempt runs at a time;
// concurrent callers poll until the in-flight attempt resolves.
func (c *Client) ensureSession(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.loggedIn {
			c.mu.Unlock()
			return nil
		}
		if !c.loggingIn {
			c.loggingIn = true
			c.mu.Unlock()

			err := c.login(ctx)

			c.mu.Lock()
			c.loggingIn = false
			c.loggedIn = err == nil
			c.mu.Unlock()
			return err
		}
		c.mu.Unlock()

		select {
		case <-time.After(loginPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("metasite: login failed with status %d", resp.StatusCode)
	}
	return nil
}

func lastPathSegment(href string) string {
	trimmed := strings.TrimRight(href, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
