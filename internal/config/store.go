package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrStorage indicates the configuration document could not be read,
// parsed, or written.
var ErrStorage = errors.New("configuration storage error")

// Defaults returns the configuration document seeded on first run. The
// values match what the installer ships with.
func Defaults() Document {
	return Document{
		"server": map[string]any{
			"host":        "0.0.0.0",
			"port":        float64(8080),
			"webgui_port": float64(8081),
			"domain":      "",
			"ssl_enabled": false,
			"ssl_cert":    "",
			"ssl_key":     "",
		},
		"security": map[string]any{
			"fail2ban_enabled":   true,
			"max_login_attempts": float64(3),
			"ban_time":           float64(3600),
			"session_timeout":    float64(3600),
		},
		"users": map[string]any{
			"default_expiry_days":      float64(30),
			"max_connections_per_user": float64(3),
			"max_users":                float64(100),
		},
		"appearance": map[string]any{
			"theme":    "dark",
			"language": "en",
		},
	}
}

// Store reads and writes the configuration document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store bound to the given document path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the configuration document. On first access, when no file
// exists yet, the default document is persisted and returned.
func (s *Store) Load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			doc := Defaults()
			if err := s.Save(doc); err != nil {
				return nil, err
			}
			return doc, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	doc := Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrStorage, s.path, err)
	}
	return doc, nil
}

// Save writes the full document, replacing whatever is on disk. Like the
// user store, it writes through a temp file and renames into place.
func (s *Store) Save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Update loads the current document, deep-merges patch into it, and saves
// the result. It returns the merged document.
func (s *Store) Update(patch Document) (Document, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	Merge(doc, patch)
	if err := s.Save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
