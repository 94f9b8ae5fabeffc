package metasite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/testutil"
)

// fakeSite is a minimal stand-in for the metadata site: a login endpoint
// that issues a session cookie and two pages that require it.
type fakeSite struct {
	mu         sync.Mutex
	logins     atomic.Int32
	searches   atomic.Int32
	listings   atomic.Int32
	groupsHTML string
	listHTML   string
	expireOnce bool
}

func (f *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok"})
	})
	mux.HandleFunc("/groups", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(w, r) {
			return
		}
		f.searches.Add(1)
		fmt.Fprint(w, f.groupsHTML)
	})
	mux.HandleFunc("/group/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(w, r) {
			return
		}
		f.listings.Add(1)
		fmt.Fprint(w, f.listHTML)
	})
	return mux
}

func (f *fakeSite) authed(w http.ResponseWriter, r *http.Request) bool {
	if c, err := r.Cookie("session"); err != nil || c.Value != "ok" {
		fmt.Fprint(w, `<form id="login-form"></form>`)
		return false
	}
	f.mu.Lock()
	expire := f.expireOnce
	f.expireOnce = false
	f.mu.Unlock()
	if expire {
		fmt.Fprint(w, `<form id="login-form"></form>`)
		return false
	}
	return true
}

func newTestClient(t *testing.T, site *fakeSite) (*Client, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	st := store.New(testutil.SetupTestDB(t))
	c := New(st, srv.URL, "user", "pass")
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c, st
}

const groupListHTML = `<html><body><table class="group-list"><tbody>
    <tr><td class="group-name"><a href="/group/778">SubsPlease</a>SubsPlease</td></tr>
    <tr><td class="group-name"><a href="/group/912">Erai-raws</a>Erai-raws</td></tr>
</tbody></table></body></html>`

const releaseListHTML = `<html><body><table class="release-list"><tbody>
    <tr><td class="filename">[SubsPlease] Show - 05 [A1B2C3D4].mkv</td><td class="episode">5</td><td class="season">2</td></tr>
    <tr><td class="filename">[SubsPlease] Show - 06 [DEADBEEF].mkv</td><td class="episode">6</td><td class="season"></td></tr>
    <tr><td class="filename">no checksum here.mkv</td><td class="episode">7</td><td class="season">1</td></tr>
</tbody></table></body></html>`

func TestResolveGroupID(t *testing.T) {
	site := &fakeSite{groupsHTML: groupListHTML}
	c, _ := newTestClient(t, site)

	id, err := c.ResolveGroupID(context.Background(), "subsplease")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "778", *id)
	assert.Equal(t, int32(1), site.logins.Load())
}

func TestResolveGroupIDCachesHitAndMiss(t *testing.T) {
	site := &fakeSite{groupsHTML: groupListHTML}
	c, _ := newTestClient(t, site)

	id, err := c.ResolveGroupID(context.Background(), "SubsPlease")
	require.NoError(t, err)
	require.NotNil(t, id)

	// A name the site does not know is cached as a negative result.
	missing, err := c.ResolveGroupID(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, int32(2), site.searches.Load())

	// Both hit and miss resolve from cache now.
	_, err = c.ResolveGroupID(context.Background(), "SubsPlease")
	require.NoError(t, err)
	missing, err = c.ResolveGroupID(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, int32(2), site.searches.Load())
}

func TestResolveGroupIDCacheTTL(t *testing.T) {
	site := &fakeSite{groupsHTML: groupListHTML}
	c, _ := newTestClient(t, site)

	_, err := c.ResolveGroupID(context.Background(), "SubsPlease")
	require.NoError(t, err)
	require.Equal(t, int32(1), site.searches.Load())

	// Six days later the entry is still fresh.
	c.now = func() time.Time { return time.Now().Add(6 * 24 * time.Hour) }
	_, err = c.ResolveGroupID(context.Background(), "SubsPlease")
	require.NoError(t, err)
	assert.Equal(t, int32(1), site.searches.Load())

	// Eight days later it is a miss and the site is queried again.
	c.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = c.ResolveGroupID(context.Background(), "SubsPlease")
	require.NoError(t, err)
	assert.Equal(t, int32(2), site.searches.Load())
}

func TestGroupReleasesParsesAndCachesBody(t *testing.T) {
	site := &fakeSite{listHTML: releaseListHTML}
	c, _ := newTestClient(t, site)

	facts, err := c.GroupReleases(context.Background(), "778")
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, ReleaseFact{Checksum: "A1B2C3D4", Episode: 5, Season: 2}, facts["A1B2C3D4"])
	assert.Equal(t, ReleaseFact{Checksum: "DEADBEEF", Episode: 6, Season: 1}, facts["DEADBEEF"])

	// Within the body TTL the cached page is parsed instead of refetched.
	facts, err = c.GroupReleases(context.Background(), "778")
	require.NoError(t, err)
	assert.Len(t, facts, 2)
	assert.Equal(t, int32(1), site.listings.Load())

	// Past the body TTL the listing is refetched.
	c.now = func() time.Time { return time.Now().Add(7 * time.Hour) }
	_, err = c.GroupReleases(context.Background(), "778")
	require.NoError(t, err)
	assert.Equal(t, int32(2), site.listings.Load())
}

func TestExpiredSessionIsRebuiltOnce(t *testing.T) {
	site := &fakeSite{groupsHTML: groupListHTML, expireOnce: true}
	c, _ := newTestClient(t, site)

	id, err := c.ResolveGroupID(context.Background(), "SubsPlease")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "778", *id)
	assert.Equal(t, int32(2), site.logins.Load())
}

func TestConcurrentCallersShareOneLogin(t *testing.T) {
	site := &fakeSite{groupsHTML: groupListHTML}
	c, _ := newTestClient(t, site)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ResolveGroupID(context.Background(), "SubsPlease")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), site.logins.Load())
}
