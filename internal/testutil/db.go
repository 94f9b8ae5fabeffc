package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Blank import for sql driver

	"github.com/ryosa/hibiki/internal/assets"
	"github.com/ryosa/hibiki/internal/db"
)

// SetupTestDB creates an in-memory SQLite database and applies the embedded
// migrations. It returns the database connection, ready for use in tests.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// An in-memory database keeps tests fast and isolated. The single
	// connection avoids each pool connection getting its own empty database.
	database, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	database.SetMaxOpenConns(1)

	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return database
}
