package core

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/ryosa/hibiki/internal/assets"
	"github.com/ryosa/hibiki/internal/config"
	"github.com/ryosa/hibiki/internal/db"
)

// App holds the shared components every service is constructed from: the
// static configuration and the database handle. The long-lived services
// (task queue, scheduler, download manager, fetch clients) are built once in
// main and passed around explicitly.
type App struct {
	cfg      *config.Config
	database *sql.DB
}

// New loads the configuration, opens the database and applies migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.Init(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		// We can't proceed without a valid schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	log.Println("Core application setup complete.")
	return &App{cfg: cfg, database: database}, nil
}

// NewWith wraps an existing configuration and database, used by tests.
func NewWith(cfg *config.Config, database *sql.DB) *App {
	return &App{cfg: cfg, database: database}
}

func (a *App) Config() *config.Config { return a.cfg }
func (a *App) DB() *sql.DB            { return a.database }

// Close releases the application's resources.
func (a *App) Close() {
	if a.database != nil {
		a.database.Close()
	}
}
