package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	turns := []Turn{
		{
			ID:        "t1",
			Question:  "Is metformin safe for elderly patients?",
			Answer:    "Evidence suggests caution with renal impairment.",
			Citations: []string{"PMC1", "PMC2"},
			Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:        "t2",
			Question:  "What about dose adjustment?",
			Answer:    "Lower starting doses are recommended.",
			Citations: []string{"PMC2"},
			Timestamp: time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC),
		},
	}

	require.NoError(t, store.Flush(ctx, "session-1", turns))

	loaded, err := store.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, turns, loaded)
}

func TestFileStoreMissingSessionIsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	turns, err := store.Load(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestFileStoreFlushReplacesHistory(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Flush(ctx, "s", []Turn{makeTurn(0), makeTurn(1)}))
	require.NoError(t, store.Flush(ctx, "s", []Turn{makeTurn(1), makeTurn(2)}))

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "turn-1", loaded[0].ID)
	assert.Equal(t, "turn-2", loaded[1].ID)
}

func TestFileStoreSanitizesSessionID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Flush(ctx, "../escape/attempt", []Turn{makeTurn(0)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "escape_attempt.jsonl", entries[0].Name())

	// Same raw ID loads the same file.
	loaded, err := store.Load(ctx, "../escape/attempt")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestFileStoreCorruptLineFails(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jsonl"), []byte("{not json\n"), 0o644))

	_, err = store.Load(context.Background(), "bad")
	assert.Error(t, err)
}
