package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

func TestStoreRecordAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	id := engine.NewJobID()
	now := time.Now().Truncate(time.Second)
	require.NoError(t, store.Record(id, "https://example.com/a.bin", "/tmp/a.bin", engine.Completed, 1024, now))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id.String(), entries[0].ID)
	assert.Equal(t, "Completed", entries[0].Status)
	assert.Equal(t, int64(1024), entries[0].TotalSize)
	assert.Equal(t, now.Unix(), entries[0].CompletedAt.Unix())
}

func TestStoreRecordOverwritesSameID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	id := engine.NewJobID()
	require.NoError(t, store.Record(id, "https://example.com/a.bin", "/tmp/a.bin", engine.Error, 0, time.Now()))
	require.NoError(t, store.Record(id, "https://example.com/a.bin", "/tmp/a.bin", engine.Completed, 2048, time.Now()))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Completed", entries[0].Status)
}

func TestStoreListOrdersMostRecentFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	older := engine.NewJobID()
	newer := engine.NewJobID()
	require.NoError(t, store.Record(older, "u1", "d1", engine.Completed, 1, time.Now().Add(-time.Hour)))
	require.NoError(t, store.Record(newer, "u2", "d2", engine.Completed, 1, time.Now()))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer.String(), entries[0].ID)
	assert.Equal(t, older.String(), entries[1].ID)
}
