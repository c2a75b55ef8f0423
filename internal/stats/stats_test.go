package stats

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUserUsage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.db.Exec(`INSERT INTO user_stats
		(username, connections, download_bytes, upload_bytes, last_connection)
		VALUES ('alice', 5, 1048576, 2097152, '2025-03-01 12:00:00')`)
	require.NoError(t, err)

	usage, ok, err := store.UserUsage(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), usage.Connections)
	assert.Equal(t, int64(1048576), usage.DownloadBytes)
	assert.Equal(t, int64(2097152), usage.UploadBytes)
	assert.Equal(t, "2025-03-01 12:00:00", usage.LastConnection)
}

func TestUserUsage_UnknownUser(t *testing.T) {
	store := setupStore(t)

	usage, ok, err := store.UserUsage(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Usage{}, usage)
}

func TestUserUsage_NullLastConnection(t *testing.T) {
	store := setupStore(t)

	_, err := store.db.Exec(`INSERT INTO user_stats (username, connections, download_bytes, upload_bytes)
		VALUES ('bob', 1, 0, 0)`)
	require.NoError(t, err)

	usage, ok, err := store.UserUsage(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "", usage.LastConnection)
}

func TestGlobalStats(t *testing.T) {
	store := setupStore(t)

	_, err := store.db.Exec(`INSERT INTO global_stats (key, value) VALUES
		('total_connections', '42'), ('total_download', '1048576')`)
	require.NoError(t, err)

	stats, err := store.GlobalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"total_connections": "42",
		"total_download":    "1048576",
	}, stats)
}

func TestGlobalStats_Empty(t *testing.T) {
	store := setupStore(t)

	stats, err := store.GlobalStats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestRecentConnections_NewestFirstWithLimit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i, user := range []string{"alice", "bob", "carol"} {
		_, err := store.db.Exec(`INSERT INTO connection_log
			(username, client_ip, start_time, duration, download_bytes, upload_bytes)
			VALUES (?, '10.0.0.1', ?, ?, 100, 200)`,
			user, fmt.Sprintf("2025-03-01 12:00:0%d", i), i)
		require.NoError(t, err)
	}

	connections, err := store.RecentConnections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, connections, 2)
	assert.Equal(t, "carol", connections[0].Username)
	assert.Equal(t, "bob", connections[1].Username)
	assert.Equal(t, int64(100), connections[0].DownloadBytes)
}

func TestRecentConnections_Empty(t *testing.T) {
	store := setupStore(t)

	connections, err := store.RecentConnections(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, connections)
}

func TestRecordSecurityEvent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSecurityEvent(ctx, "login_failed", "10.0.0.9", "admin", "invalid credentials"))
	require.NoError(t, store.RecordSecurityEvent(ctx, "login_success", "10.0.0.9", "admin", "admin login"))

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM security_log`).Scan(&count))
	assert.Equal(t, 2, count)

	var eventType, clientIP, username, description, timestamp string
	err := store.db.QueryRow(`SELECT event_type, client_ip, username, description, timestamp
		FROM security_log ORDER BY id LIMIT 1`).
		Scan(&eventType, &clientIP, &username, &description, &timestamp)
	require.NoError(t, err)
	assert.Equal(t, "login_failed", eventType)
	assert.Equal(t, "10.0.0.9", clientIP)
	assert.Equal(t, "admin", username)
	assert.Equal(t, "invalid credentials", description)
	assert.NotEmpty(t, timestamp)
}
