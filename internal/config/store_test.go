package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_FirstLoadSeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := NewStore(path)

	doc, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), doc)

	// The defaults must have been persisted, not just returned.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"webgui_port"`)

	again, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0600))

	_, err := NewStore(path).Load()
	require.ErrorIs(t, err, ErrStorage)
}

func TestStore_UpdateMergesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := NewStore(path)

	doc, err := store.Update(Document{
		"server": map[string]any{"port": float64(9090)},
	})
	require.NoError(t, err)

	server := doc["server"].(map[string]any)
	assert.Equal(t, float64(9090), server["port"])
	// Sibling keys of the patched section survive.
	assert.Equal(t, "0.0.0.0", server["host"])
	assert.Equal(t, float64(8081), server["webgui_port"])

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(9090), reloaded["server"].(map[string]any)["port"])
}

func TestStore_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := NewStore(path)

	doc := Document{"appearance": map[string]any{"theme": "light"}}
	require.NoError(t, store.Save(doc))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}
