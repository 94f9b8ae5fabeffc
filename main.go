package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryosa/hibiki/internal/api"
	"github.com/ryosa/hibiki/internal/core"
	"github.com/ryosa/hibiki/internal/downloads"
	"github.com/ryosa/hibiki/internal/indexer"
	"github.com/ryosa/hibiki/internal/metadata"
	"github.com/ryosa/hibiki/internal/metasite"
	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/releases"
	"github.com/ryosa/hibiki/internal/schedule"
	"github.com/ryosa/hibiki/internal/store"
	"github.com/ryosa/hibiki/internal/taskqueue"
	"github.com/ryosa/hibiki/internal/websocket"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	cfg := app.Config()
	st := store.New(app.DB())
	// A fresh install has an empty download root; seed it from the config so
	// folder scans work before the user ever opens the settings page.
	if err := st.EnsureDownloadRoot(cfg.Downloads.Path); err != nil {
		log.Printf("Warning: could not seed download root: %v", err)
	}

	// Progress feed for the frontend.
	hub := websocket.NewHub()
	go hub.Run()

	queue := taskqueue.New(st, hub)

	// Fetch clients for the two scrape targets and the metadata API.
	idx := indexer.New(cfg.Indexer.BaseURL)
	site := metasite.New(st, cfg.MetadataSite.BaseURL, cfg.MetadataSite.Username, cfg.MetadataSite.Password)
	refresher := metadata.NewRefresher(st, metadata.NewClient(cfg.MetadataAPI.URL))
	scanner := releases.NewScanner(st, idx, site)

	manager, err := downloads.NewManager(st, hub, cfg.Downloads.Path)
	if err != nil {
		log.Fatalf("Could not start download manager: %v", err)
	}
	reconciler := downloads.NewReconciler(st, manager)
	auto := releases.NewAutoDownloader(st, queue, manager)

	// Bind every task type before the worker starts pulling.
	queue.Register(models.TaskScanReleases, scanner.HandleScanReleases)
	queue.Register(models.TaskRefreshCatalog, refresher.HandleRefreshCatalog)
	queue.Register(models.TaskScanFolder, reconciler.HandleScanFolder)
	queue.Register(models.TaskScanAutoDownload, auto.HandleScanCandidates)
	queue.Register(models.TaskQueueAutoDownload, auto.HandleQueueTransfers)

	if err := queue.Start(); err != nil {
		log.Fatalf("Could not start task queue: %v", err)
	}
	manager.Start()

	sched := schedule.New(st, queue)
	if err := sched.Initialize(); err != nil {
		log.Fatalf("Could not arm scheduled jobs: %v", err)
	}

	// Keep the current season window fresh out of the box. Creation is
	// idempotent, so restarts reuse the existing job.
	now := time.Now()
	quarter := int(now.Month()-1)/3 + 1
	name := fmt.Sprintf("Refresh %d Q%d catalog", now.Year(), quarter)
	if _, err := sched.EnsureWindowJob(name, "0 4 * * *", quarter, now.Year()); err != nil {
		log.Printf("Warning: could not ensure catalog refresh job: %v", err)
	}

	// Watch the download folder so externally added files get reconciled.
	watcher := downloads.NewWatcher(cfg.Downloads.Path, queue)
	if err := watcher.Start(); err != nil {
		log.Printf("Warning: download folder watcher failed to start: %v", err)
	}

	// Setup the API server
	server := api.NewServer(app, queue, sched, manager, hub)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := watcher.Stop(); err != nil {
		log.Printf("Warning: stopping folder watcher: %v", err)
	}
	sched.Stop()
	queue.Stop()
	manager.Stop()

	log.Println("Server exiting.")
}
