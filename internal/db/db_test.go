package db_test

import (
	"testing"

	"github.com/ryosa/hibiki/internal/testutil"
)

func TestForeignKeyCascadeDelete(t *testing.T) {
	// Setup test database with migrations already applied
	db := testutil.SetupTestDB(t)

	// Verify foreign keys are enabled
	var foreignKeysEnabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysEnabled)
	if err != nil {
		t.Fatalf("Failed to check foreign keys status: %v", err)
	}
	if foreignKeysEnabled != 1 {
		t.Errorf("Foreign keys should be enabled, got: %d", foreignKeysEnabled)
	}

	// Create an anime with an episode, a torrent and an alternative title.
	_, err = db.Exec("INSERT INTO animes (title) VALUES ('Cascade Show')")
	if err != nil {
		t.Fatalf("Failed to create anime: %v", err)
	}
	_, err = db.Exec("INSERT INTO episodes (anime_id, number) VALUES (1, 1)")
	if err != nil {
		t.Fatalf("Failed to create episode: %v", err)
	}
	_, err = db.Exec("INSERT INTO torrents (episode_id, title, link) VALUES (1, '[Subs] Cascade Show - 01', 'https://nyaa.si/view/1')")
	if err != nil {
		t.Fatalf("Failed to create torrent: %v", err)
	}
	_, err = db.Exec("INSERT INTO alternative_titles (anime_id, title) VALUES (1, 'Kasukeedo Shou')")
	if err != nil {
		t.Fatalf("Failed to create alternative title: %v", err)
	}

	// Deleting the anime must cascade through episodes, torrents and titles.
	if _, err := db.Exec("DELETE FROM animes WHERE id = 1"); err != nil {
		t.Fatalf("Failed to delete anime: %v", err)
	}

	for _, table := range []string{"episodes", "torrents", "alternative_titles"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("Failed to count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("Expected %s to be empty after cascade delete, got %d rows", table, count)
		}
	}
}

func TestTorrentGroupDeleteSetsNull(t *testing.T) {
	db := testutil.SetupTestDB(t)

	mustExec := func(query string) {
		t.Helper()
		if _, err := db.Exec(query); err != nil {
			t.Fatalf("Exec failed: %v", err)
		}
	}
	mustExec("INSERT INTO animes (title) VALUES ('Orphan Show')")
	mustExec("INSERT INTO episodes (anime_id, number) VALUES (1, 1)")
	mustExec("INSERT INTO release_groups (name) VALUES ('SubsPlease')")
	mustExec("INSERT INTO torrents (episode_id, group_id, title, link) VALUES (1, 1, '[SubsPlease] Orphan Show - 01', 'https://nyaa.si/view/2')")

	// The torrent row survives its group, it just loses the attribution.
	mustExec("DELETE FROM release_groups WHERE id = 1")

	var groupID interface{}
	if err := db.QueryRow("SELECT group_id FROM torrents WHERE id = 1").Scan(&groupID); err != nil {
		t.Fatalf("Failed to read torrent back: %v", err)
	}
	if groupID != nil {
		t.Errorf("Expected group_id to be NULL after group delete, got %v", groupID)
	}
}
