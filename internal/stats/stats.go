package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// schema matches the tables created by the tunnel service. CREATE IF NOT
// EXISTS keeps either process safe to start first.
const schema = `
CREATE TABLE IF NOT EXISTS user_stats (
    username TEXT PRIMARY KEY,
    connections INTEGER DEFAULT 0,
    download_bytes INTEGER DEFAULT 0,
    upload_bytes INTEGER DEFAULT 0,
    last_connection TEXT
);
CREATE TABLE IF NOT EXISTS global_stats (
    key TEXT PRIMARY KEY,
    value TEXT
);
CREATE TABLE IF NOT EXISTS connection_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT,
    client_ip TEXT,
    start_time TEXT,
    duration INTEGER,
    download_bytes INTEGER,
    upload_bytes INTEGER
);
CREATE TABLE IF NOT EXISTS security_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT,
    client_ip TEXT,
    username TEXT,
    description TEXT,
    timestamp TEXT
);
`

// Usage is the per-user traffic summary joined into user listings.
type Usage struct {
	Connections    int64  `json:"connections"`
	DownloadBytes  int64  `json:"download_bytes"`
	UploadBytes    int64  `json:"upload_bytes"`
	LastConnection string `json:"last_connection"`
}

// Connection is one row of the tunnel's connection history.
type Connection struct {
	Username      string `json:"username"`
	ClientIP      string `json:"client_ip"`
	StartTime     string `json:"start_time"`
	Duration      int64  `json:"duration"`
	DownloadBytes int64  `json:"download_bytes"`
	UploadBytes   int64  `json:"upload_bytes"`
}

// Store provides read access to the statistics database plus security
// event appends.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the statistics database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statistics db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize statistics schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open database handle. Used by tests.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UserUsage returns the traffic summary for one user. The second return
// value is false when the tunnel has recorded nothing for that user yet.
func (s *Store) UserUsage(ctx context.Context, username string) (Usage, bool, error) {
	query := `SELECT connections, download_bytes, upload_bytes, COALESCE(last_connection, '')
		FROM user_stats WHERE username = ?`
	var u Usage
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&u.Connections, &u.DownloadBytes, &u.UploadBytes, &u.LastConnection)
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{}, false, nil
	}
	if err != nil {
		return Usage{}, false, fmt.Errorf("failed to query user stats: %w", err)
	}
	return u, true, nil
}

// GlobalStats returns the tunnel's global counters as a key/value map.
func (s *Store) GlobalStats(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM global_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query global stats: %w", err)
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// RecentConnections returns the newest limit rows of the connection
// history, newest first.
func (s *Store) RecentConnections(ctx context.Context, limit int) ([]Connection, error) {
	query := `SELECT username, client_ip, start_time, duration, download_bytes, upload_bytes
		FROM connection_log ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection log: %w", err)
	}
	defer rows.Close()

	var result []Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.Username, &c.ClientIP, &c.StartTime,
			&c.Duration, &c.DownloadBytes, &c.UploadBytes); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordSecurityEvent appends one row to the security log.
func (s *Store) RecordSecurityEvent(ctx context.Context, eventType, clientIP, username, description string) error {
	query := `INSERT INTO security_log (event_type, client_ip, username, description, timestamp)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, eventType, clientIP, username, description,
		time.Now().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("failed to record security event: %w", err)
	}
	return nil
}
