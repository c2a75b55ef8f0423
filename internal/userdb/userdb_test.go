package userdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidUsername(t *testing.T) {
	valid := []string{"alice", "svc_user-1", "_svc", "a", "bob99"}
	for _, name := range valid {
		assert.True(t, ValidUsername(name), name)
	}
	invalid := []string{"", "Admin!", "Alice", "9bob", "-dash", "user name", "user.name"}
	for _, name := range invalid {
		assert.False(t, ValidUsername(name), name)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store := NewStore(path)

	doc := &Document{
		Users: []User{{
			Username:       "alice",
			Password:       "secretpw",
			Created:        "2025-03-14 15:09:26",
			LastModified:   "2025-03-14 15:09:26",
			Expires:        "2025-12-31",
			MaxConnections: 3,
			Active:         true,
		}},
		Settings: map[string]any{"admin_username": "admin"},
	}
	require.NoError(t, store.Save(doc))

	// Temp file must not outlive the rename.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, doc.Users, loaded.Users)
	assert.Equal(t, "admin", loaded.Settings["admin_username"])
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"))
	_, err := store.Load()
	require.ErrorIs(t, err, ErrStorageUnavailable)
	// Missing is distinguishable from corrupt for first-run tolerance.
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStore(path).Load()
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, os.ErrNotExist)
}

func TestStore_SaveNormalizesNilFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store := NewStore(path)
	require.NoError(t, store.Save(&Document{}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, loaded.Users)
	assert.NotNil(t, loaded.Settings)
}

func TestStore_Backup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	store := NewStore(path)
	require.NoError(t, store.Save(&Document{
		Users:    []User{{Username: "alice", Active: true}},
		Settings: map[string]any{"admin_username": "admin"},
	}))

	backupPath := filepath.Join(dir, "backup.json")
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local)
	require.NoError(t, store.Backup(backupPath, now))

	data, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	snapshot := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &snapshot))

	assert.Equal(t, "2025-03-14 15:09:26", snapshot["timestamp"])
	assert.Equal(t, "1.0", snapshot["version"])
	users, ok := snapshot["users"].([]any)
	require.True(t, ok)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].(map[string]any)["username"])
	settings, ok := snapshot["settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "admin", settings["admin_username"])
}

func TestStore_BackupMissingSource(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "absent.json"))
	err := store.Backup(filepath.Join(dir, "backup.json"), time.Now())
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestDocument_FindUser(t *testing.T) {
	doc := &Document{Users: []User{{Username: "alice"}, {Username: "bob"}}}
	assert.Equal(t, 0, doc.FindUser("alice"))
	assert.Equal(t, 1, doc.FindUser("bob"))
	assert.Equal(t, -1, doc.FindUser("Alice"), "matching is case-sensitive")
	assert.Equal(t, -1, doc.FindUser("carol"))
}

func TestUser_Status(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		user User
		want string
	}{
		{"inactive", User{Active: false}, "Inactive"},
		{"inactive wins over expiry", User{Active: false, Expires: "2020-01-01"}, "Inactive"},
		{"no expiry", User{Active: true}, "Active"},
		{"expired", User{Active: true, Expires: "2025-03-13"}, "Expired"},
		{"days left", User{Active: true, Expires: "2025-03-20"}, "Active (6d left)"},
		{"unparseable expiry", User{Active: true, Expires: "soon"}, "Active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Status(now))
		})
	}
}

func TestUser_Expired(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)
	assert.True(t, (&User{Expires: "2025-03-13"}).Expired(now))
	assert.False(t, (&User{Expires: "2025-03-20"}).Expired(now))
	assert.False(t, (&User{}).Expired(now))
}
