package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a file with the given content inside dir, creating
// intermediate directories as needed. Useful for folder-reconciliation tests.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}
