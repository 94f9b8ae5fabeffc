package downloads

import (
	"sync"
	"time"
)

// Transfer states. A transfer moves initializing -> downloading, may bounce
// between downloading and queued, and ends in completed or error.
const (
	StateInitializing = "initializing"
	StateDownloading  = "downloading"
	StateQueued       = "queued"
	StateCompleted    = "completed"
	StateError        = "error"
)

// Transfer is one peer-to-peer download session tracked by the manager.
// It lives for the process lifetime only; durable state is the torrent and
// downloaded_files rows.
type Transfer struct {
	Link       string    `json:"link"`
	Title      string    `json:"title"`
	Magnet     string    `json:"-"`
	AnimeID    int64     `json:"anime_id"`
	AnimeTitle string    `json:"anime_title"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	Bytes      int64     `json:"bytes_completed"`
	Length     int64     `json:"length"`
	AddedAt    time.Time `json:"added_at"`

	StagingDir string `json:"-"`
	FinalDir   string `json:"-"`
}

func (t *Transfer) terminal() bool {
	return t.State == StateCompleted || t.State == StateError
}

// registry owns every transfer's state. It enforces the activity ceiling:
// registration is unbounded, but only `limit` transfers may be actively
// downloading at once; the rest wait in queued state in insertion order.
type registry struct {
	mu        sync.Mutex
	limit     int
	transfers []*Transfer
	byLink    map[string]*Transfer
}

func newRegistry(limit int) *registry {
	return &registry{
		limit:  limit,
		byLink: make(map[string]*Transfer),
	}
}

// add registers a transfer and decides admission synchronously, before the
// underlying client reports readiness. Beyond the ceiling the transfer is
// queued (paused) immediately so it never competes for bandwidth.
// The bool reports whether the transfer was admitted as active.
func (r *registry) add(t *Transfer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.AddedAt = time.Now()
	if r.activeCountLocked() < r.limit {
		t.State = StateInitializing
	} else {
		t.State = StateQueued
	}
	r.transfers = append(r.transfers, t)
	r.byLink[t.Link] = t
	return t.State == StateInitializing
}

func (r *registry) activeCountLocked() int {
	n := 0
	for _, t := range r.transfers {
		if t.State == StateInitializing || t.State == StateDownloading {
			n++
		}
	}
	return n
}

// get returns the transfer for a link, or nil.
func (r *registry) get(link string) *Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byLink[link]
}

// activate moves an admitted transfer from initializing to downloading once
// the client has its metadata. A queued transfer stays queued.
func (r *registry) activate(link string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byLink[link]
	if t == nil || t.State != StateInitializing {
		return false
	}
	t.State = StateDownloading
	return true
}

// complete marks a transfer done and returns the next queued transfer to
// resume, if any.
func (r *registry) complete(link string) (*Transfer, *Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byLink[link]
	if t == nil || t.terminal() {
		return t, nil
	}
	t.State = StateCompleted
	return t, r.resumeNextLocked()
}

// fail marks a transfer errored and returns the next queued transfer to
// resume, if any.
func (r *registry) fail(link, msg string) (*Transfer, *Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byLink[link]
	if t == nil || t.terminal() {
		return t, nil
	}
	t.State = StateError
	t.Error = msg
	return t, r.resumeNextLocked()
}

// pause moves an active transfer back to queued and returns the next queued
// transfer to take its slot, if any.
func (r *registry) pause(link string) (*Transfer, *Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byLink[link]
	if t == nil || (t.State != StateDownloading && t.State != StateInitializing) {
		return t, nil
	}
	t.State = StateQueued
	return t, r.resumeNextLocked()
}

// resume manually activates a queued transfer if a slot is free.
func (r *registry) resume(link string) *Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.byLink[link]
	if t == nil || t.State != StateQueued {
		return nil
	}
	if r.activeCountLocked() >= r.limit {
		return nil
	}
	t.State = StateDownloading
	return t
}

// resumeNextLocked picks the first queued transfer in insertion order.
// FIFO by registration, not priority.
func (r *registry) resumeNextLocked() *Transfer {
	if r.activeCountLocked() >= r.limit {
		return nil
	}
	for _, t := range r.transfers {
		if t.State == StateQueued {
			t.State = StateDownloading
			return t
		}
	}
	return nil
}

// list returns a snapshot of every transfer in insertion order.
func (r *registry) list() []*Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transfer, 0, len(r.transfers))
	for _, t := range r.transfers {
		copied := *t
		out = append(out, &copied)
	}
	return out
}

// setProgress updates the byte counters of a transfer.
func (r *registry) setProgress(link string, bytes, length int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.byLink[link]; t != nil {
		t.Bytes = bytes
		t.Length = length
	}
}

// state reads a transfer's current state under the lock.
func (r *registry) state(link string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.byLink[link]; t != nil {
		return t.State
	}
	return ""
}
