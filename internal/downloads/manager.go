// Package downloads drives the peer-to-peer transfer client. The manager
// admits at most three simultaneously active transfers, stages data in a
// hidden per-folder directory, and reconciles finished files into the
// catalog. The underlying client's callback style is flattened into an
// event channel observed by one coordinator goroutine.
package downloads

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
)

const (
	// ActiveLimit is the hard ceiling on simultaneously downloading
	// transfers. Registration beyond it queues, it never rejects.
	ActiveLimit = 3

	// StagingDirName is the hidden per-folder directory partially
	// downloaded data lives in until completion.
	StagingDirName = ".incomplete"

	progressInterval = time.Second
)

// Notifier pushes progress updates to connected clients.
type Notifier interface {
	BroadcastJSON(v interface{})
}

type event struct {
	link string
	err  error
}

// Manager owns the transfer client and the runtime transfer registry.
type Manager struct {
	st           *store.Store
	notifier     Notifier
	downloadRoot string

	client    *torrent.Client
	dlLimiter *rate.Limiter
	ulLimiter *rate.Limiter

	registry *registry
	events   chan event
	stop     chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	torrents map[string]*torrent.Torrent
}

// NewManager builds the transfer client with rate ceilings taken from the
// stored settings. Call Start to begin processing completions.
func NewManager(st *store.Store, notifier Notifier, downloadRoot string) (*Manager, error) {
	if err := os.MkdirAll(downloadRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create download root: %w", err)
	}

	settings, err := st.GetSettings()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		st:           st,
		notifier:     notifier,
		downloadRoot: downloadRoot,
		dlLimiter:    newRateLimiter(settings.MaxDownloadKbps),
		ulLimiter:    newRateLimiter(settings.MaxUploadKbps),
		registry:     newRegistry(ActiveLimit),
		events:       make(chan event, 16),
		stop:         make(chan struct{}),
		torrents:     make(map[string]*torrent.Torrent),
	}

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = downloadRoot
	cfg.Seed = false
	cfg.DownloadRateLimiter = m.dlLimiter
	cfg.UploadRateLimiter = m.ulLimiter

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create transfer client: %w", err)
	}
	m.client = client
	return m, nil
}

// Start launches the completion coordinator.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.coordinate()
	log.Printf("Download manager started, root %s", m.downloadRoot)
}

// Stop halts the coordinator and closes the transfer client.
func (m *Manager) Stop() {
	close(m.stop)
	m.wg.Wait()
	m.client.Close()
}

// ApplySettings re-applies the byte-rate ceilings to the live client.
// Called on every settings save; zero means unlimited.
func (m *Manager) ApplySettings(settings *models.Settings) {
	applyLimit(m.dlLimiter, settings.MaxDownloadKbps)
	applyLimit(m.ulLimiter, settings.MaxUploadKbps)
}

// StartTransfer registers a new transfer for a matched release. A transfer beyond
// the activity ceiling is paused before the client can start pulling data
// for it. Re-adding a known link is a no-op.
func (m *Manager) StartTransfer(c *models.DownloadCandidate) error {
	if c.Magnet == "" {
		return fmt.Errorf("release %q has no magnet link", c.Torrent.Title)
	}
	if m.registry.get(c.Link) != nil {
		return nil
	}

	settings, err := m.st.GetSettings()
	if err != nil {
		return err
	}
	finalDir := m.downloadRoot
	if settings.SortDownloads && c.AnimeTitle != "" {
		finalDir = filepath.Join(m.downloadRoot, sanitizeFolderName(c.AnimeTitle))
	}
	stagingDir := filepath.Join(finalDir, StagingDirName)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	spec, err := torrent.TorrentSpecFromMagnetUri(c.Magnet)
	if err != nil {
		return fmt.Errorf("parse magnet: %w", err)
	}
	// Data chunks land in the hidden staging dir; the piece-completion db
	// kept alongside them lets interrupted downloads resume from disk.
	spec.Storage = storage.NewFile(stagingDir)

	t, _, err := m.client.AddTorrentSpec(spec)
	if err != nil {
		return fmt.Errorf("add transfer: %w", err)
	}

	tr := &Transfer{
		Link:       c.Link,
		Title:      c.Torrent.Title,
		Magnet:     c.Magnet,
		AnimeID:    c.AnimeID,
		AnimeTitle: c.AnimeTitle,
		StagingDir: stagingDir,
		FinalDir:   finalDir,
	}
	if !m.registry.add(tr) {
		t.DisallowDataDownload()
	}

	m.mu.Lock()
	m.torrents[c.Link] = t
	m.mu.Unlock()

	m.wg.Add(1)
	go m.monitor(c.Link, t)
	m.broadcast(c.Link)
	return nil
}

// Pause moves an active transfer back to the queue and hands its slot to
// the next queued transfer.
func (m *Manager) Pause(link string) {
	if t, _ := m.registry.pause(link); t != nil {
		m.broadcast(link)
	}
}

// Resume manually activates a queued transfer if a slot is free.
func (m *Manager) Resume(link string) {
	if t := m.registry.resume(link); t != nil {
		m.broadcast(link)
	}
}

// ResumeIncomplete restarts the transfer behind a staged on-disk file found
// by the folder reconciler. Unknown links are re-registered from the
// catalog.
func (m *Manager) ResumeIncomplete(link string) error {
	if tr := m.registry.get(link); tr != nil {
		m.Resume(link)
		return nil
	}
	candidate, err := m.st.GetCandidateByLink(link)
	if err != nil {
		return err
	}
	if candidate == nil {
		return fmt.Errorf("no release recorded for link %s", link)
	}
	return m.StartTransfer(candidate)
}

// List returns a snapshot of all transfers in registration order.
func (m *Manager) List() []*Transfer {
	return m.registry.list()
}

// monitor follows one transfer: waits for metadata, starts or stops data
// flow as the registry state flips, and reports completion to the
// coordinator.
func (m *Manager) monitor(link string, t *torrent.Torrent) {
	defer m.wg.Done()

	select {
	case <-m.stop:
		return
	case <-t.GotInfo():
	}
	m.registry.activate(link)
	m.broadcast(link)

	started := false
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		switch m.registry.state(link) {
		case StateDownloading:
			if !started {
				t.AllowDataDownload()
				t.DownloadAll()
				started = true
			}
		case StateQueued:
			if started {
				t.DisallowDataDownload()
				started = false
			}
			continue
		case StateCompleted, StateError, "":
			return
		default:
			continue
		}

		m.registry.setProgress(link, t.BytesCompleted(), t.Length())
		m.broadcast(link)

		if t.BytesMissing() == 0 {
			select {
			case m.events <- event{link: link}:
			case <-m.stop:
			}
			return
		}
	}
}

// coordinate is the single goroutine that reacts to transfer terminations:
// it reconciles completed data onto disk and resumes the next queued
// transfer.
func (m *Manager) coordinate() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case ev := <-m.events:
			m.finish(ev)
		}
	}
}

func (m *Manager) finish(ev event) {
	if ev.err == nil {
		if err := m.reconcileCompleted(ev.link); err != nil {
			log.Printf("Download: reconciling %s: %v", ev.link, err)
			ev.err = err
		}
	}

	var next *Transfer
	if ev.err != nil {
		_, next = m.registry.fail(ev.link, ev.err.Error())
	} else {
		_, next = m.registry.complete(ev.link)
	}
	m.dropTorrent(ev.link)
	m.broadcast(ev.link)
	if next != nil {
		m.broadcast(next.Link)
	}
}

// reconcileCompleted records every file of a finished transfer and moves it
// out of the staging directory; the staging directory is removed once empty.
func (m *Manager) reconcileCompleted(link string) error {
	tr := m.registry.get(link)
	m.mu.Lock()
	t := m.torrents[link]
	m.mu.Unlock()
	if tr == nil || t == nil {
		return fmt.Errorf("transfer %s is not registered", link)
	}

	relPaths := make([]string, 0, len(t.Files()))
	for _, f := range t.Files() {
		relPaths = append(relPaths, f.Path())
	}

	moved, err := moveStagedFiles(tr.StagingDir, tr.FinalDir, relPaths)
	if err != nil {
		return err
	}
	for _, path := range moved {
		animeID := tr.AnimeID
		if err := m.st.UpsertDownloadedFile(tr.Link, path, &animeID); err != nil {
			return err
		}
	}
	removeStagingDir(tr.StagingDir)
	return nil
}

func (m *Manager) dropTorrent(link string) {
	m.mu.Lock()
	t := m.torrents[link]
	delete(m.torrents, link)
	m.mu.Unlock()
	if t != nil {
		t.Drop()
	}
}

func (m *Manager) broadcast(link string) {
	if m.notifier == nil {
		return
	}
	tr := m.registry.get(link)
	if tr == nil {
		return
	}
	progress := 0.0
	if tr.Length > 0 {
		progress = float64(tr.Bytes) / float64(tr.Length) * 100
	}
	m.notifier.BroadcastJSON(models.ProgressUpdate{
		Source:   "downloads",
		ItemID:   tr.Link,
		Message:  tr.Title,
		Status:   tr.State,
		Progress: progress,
		Done:     tr.terminal(),
	})
}

func newRateLimiter(kbps int64) *rate.Limiter {
	if kbps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	bytesPerSec := kbps * 1024
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

func applyLimit(l *rate.Limiter, kbps int64) {
	if kbps <= 0 {
		l.SetLimit(rate.Inf)
		return
	}
	bytesPerSec := kbps * 1024
	l.SetLimit(rate.Limit(bytesPerSec))
	l.SetBurst(int(bytesPerSec))
}

func sanitizeFolderName(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "")
	return strings.TrimSpace(replacer.Replace(name))
}
