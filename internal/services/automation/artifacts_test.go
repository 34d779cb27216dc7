package automation

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactStore_RemoveOlderThan(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	old, err := store.Create("task_old")
	require.NoError(t, err)
	fresh, err := store.Create("task_fresh")
	require.NoError(t, err)

	_, err = old.WriteFile("rows/row_0.png", []byte("png"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.Dir, past, past))

	removed, err := store.RemoveOlderThan(time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, old.Dir)
	assert.DirExists(t, fresh.Dir)
}

func TestArtifacts_WriteJSON(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)
	a, err := store.Create("task_json")
	require.NoError(t, err)

	path, err := a.WriteJSON("results.json", map[string]int{"items": 2})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": 2}`, string(data))

	require.NoError(t, a.Remove())
	assert.NoDirExists(t, a.Dir)
}
