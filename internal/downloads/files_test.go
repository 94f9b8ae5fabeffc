package downloads

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosa/hibiki/internal/testutil"
)

func TestMoveStagedFiles(t *testing.T) {
	final := t.TempDir()
	staging := filepath.Join(final, StagingDirName)
	require.NoError(t, os.MkdirAll(staging, 0o755))

	testutil.WriteFile(t, staging, "Show - 01.mkv", "video")
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "extras"), 0o755))
	testutil.WriteFile(t, filepath.Join(staging, "extras"), "op.mkv", "opening")

	moved, err := moveStagedFiles(staging, final, []string{
		"Show - 01.mkv",
		filepath.Join("extras", "op.mkv"),
		"never-downloaded.mkv",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(final, "Show - 01.mkv"),
		filepath.Join(final, "extras", "op.mkv"),
	}, moved)

	for _, p := range moved {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	// The emptied subdirectory is pruned from staging.
	_, err = os.Stat(filepath.Join(staging, "extras"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveStagingDir(t *testing.T) {
	final := t.TempDir()
	staging := filepath.Join(final, StagingDirName)
	require.NoError(t, os.MkdirAll(staging, 0o755))

	// Only the client's bookkeeping file remains after a move.
	testutil.WriteFile(t, staging, ".torrent.bolt.db", "bookkeeping")

	removeStagingDir(staging)
	_, err := os.Stat(staging)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveStagingDirKeepsDataFiles(t *testing.T) {
	final := t.TempDir()
	staging := filepath.Join(final, StagingDirName)
	require.NoError(t, os.MkdirAll(staging, 0o755))
	testutil.WriteFile(t, staging, "still-downloading.mkv", "partial")

	removeStagingDir(staging)
	_, err := os.Stat(filepath.Join(staging, "still-downloading.mkv"))
	assert.NoError(t, err)
}
