package exportpipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDatabaseIfNeededSkipsBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages.db")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

	manifest, err := chunkDatabaseIfNeeded(path, 1000, 100)
	require.NoError(t, err)
	assert.Nil(t, manifest)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "unchunked file must survive when under threshold")
}

func TestChunkDatabaseIfNeededSplitsAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messages.db")
	content := make([]byte, 250)
	for i := range content {
		content[i] = byte(i % 256)
	}
	require.NoError(t, os.WriteFile(path, content, 0o644))

	manifest, err := chunkDatabaseIfNeeded(path, 200, 100)
	require.NoError(t, err)
	require.Len(t, manifest, 3)
	assert.Equal(t, int64(100), manifest[0].SizeBytes)
	assert.Equal(t, int64(100), manifest[1].SizeBytes)
	assert.Equal(t, int64(50), manifest[2].SizeBytes)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "the unchunked original must be removed once split")

	for i, entry := range manifest {
		chunkPath := path + entryPartSuffix(i)
		data, err := os.ReadFile(chunkPath)
		require.NoError(t, err)
		assert.Equal(t, int(entry.SizeBytes), len(data))
	}
}

func entryPartSuffix(i int) string {
	return ".part00" + string(rune('0'+i))
}
