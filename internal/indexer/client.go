// Package indexer scrapes release listings from the torrent indexer.
// Searches across different titles may run in parallel, but the client
// holds a two-slot semaphore and cools down after each page so the site
// never sees a burst.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/avast/retry-go"
)

// Release is one row scraped from the indexer's listing table.
type Release struct {
	Title       string
	Link        string
	Magnet      string
	Size        string
	Seeders     int
	PublishedAt time.Time
}

var errRateLimited = errors.New("indexer: rate limited")

const (
	searchConcurrency = 2
	pageCooldown      = 500 * time.Millisecond
	maxPages          = 50
)

type Client struct {
	client     *http.Client
	baseURL    string
	slots      chan struct{}
	retryDelay time.Duration
}

func New(baseURL string) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		slots:      make(chan struct{}, searchConcurrency),
		retryDelay: 2 * time.Second,
	}
	return c
}

// Search walks the paginated results for a query until an empty page or the
// listing's last-page marker. Rows come back in the indexer's order, newest
// first.
func (c *Client) Search(ctx context.Context, query string) ([]Release, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slots }()

	var all []Release
	for page := 1; page <= maxPages; page++ {
		releases, last, err := c.fetchPage(ctx, query, page)
		if err != nil {
			return all, err
		}
		all = append(all, releases...)
		// Stay under the site's implicit rate limit before the next page
		// (or before releasing the slot to another search).
		select {
		case <-time.After(pageCooldown):
		case <-ctx.Done():
			return all, ctx.Err()
		}
		if last || len(releases) == 0 {
			break
		}
	}
	return all, nil
}

// fetchPage retries rate-limited responses a bounded number of times with a
// fixed backoff; any other failure surfaces immediately.
func (c *Client) fetchPage(ctx context.Context, query string, page int) ([]Release, bool, error) {
	var releases []Release
	var last bool

	err := retry.Do(
		func() error {
			var err error
			releases, last, err = c.fetchPageOnce(ctx, query, page)
			return err
		},
		// Attempts counts the first call, so 4 means up to three retries.
		retry.Attempts(4),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errRateLimited) }),
		retry.LastErrorOnly(true),
	)
	return releases, last, err
}

func (c *Client) fetchPageOnce(ctx context.Context, query string, page int) ([]Release, bool, error) {
	u := fmt.Sprintf("%s/?f=0&c=1_2&q=%s&p=%d", c.baseURL, url.QueryEscape(query), page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, false, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("indexer: unexpected status %d for %s", resp.StatusCode, u)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, false, err
	}

	var releases []Release
	doc.Find("table.torrent-list tbody tr").Each(func(i int, row *goquery.Selection) {
		r, ok := c.parseRow(row)
		if !ok {
			return
		}
		releases = append(releases, r)
	})

	last := doc.Find("ul.pagination li.next.disabled").Length() > 0
	return releases, last, nil
}

func (c *Client) parseRow(row *goquery.Selection) (Release, bool) {
	var r Release

	// The title cell holds a comment-count anchor and the view link; the
	// view link is the one without the comments class.
	titleCell := row.Find("td[colspan='2']")
	if titleCell.Length() == 0 {
		titleCell = row.Find("td").Eq(1)
	}
	titleCell.Find("a").Each(func(i int, a *goquery.Selection) {
		if a.HasClass("comments") {
			return
		}
		if title, ok := a.Attr("title"); ok && title != "" {
			r.Title = title
		} else {
			r.Title = strings.TrimSpace(a.Text())
		}
		if href, ok := a.Attr("href"); ok {
			r.Link = c.absolute(href)
		}
	})
	if r.Title == "" || r.Link == "" {
		return r, false
	}

	row.Find("a").Each(func(i int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if strings.HasPrefix(href, "magnet:") {
			r.Magnet = href
		} else if strings.HasSuffix(href, ".torrent") {
			// Prefer the magnet but keep the file link as a fallback.
			if r.Magnet == "" {
				r.Magnet = c.absolute(href)
			}
		}
	})

	cells := row.Find("td")
	if cells.Length() >= 4 {
		r.Size = strings.TrimSpace(cells.Eq(3).Text())
	}
	if cells.Length() >= 5 {
		if ts, ok := cells.Eq(4).Attr("data-timestamp"); ok {
			if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
				r.PublishedAt = time.Unix(sec, 0)
			}
		}
	}
	if cells.Length() >= 6 {
		if n, err := strconv.Atoi(strings.TrimSpace(cells.Eq(5).Text())); err == nil {
			r.Seeders = n
		}
	}
	return r, true
}

func (c *Client) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return c.baseURL + href
}
