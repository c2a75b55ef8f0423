package userdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"
)

// Timestamp layouts used throughout the user document.
const (
	// TimeLayout formats the created and last_modified fields.
	TimeLayout = "2006-01-02 15:04:05"
	// DateLayout formats the expires field.
	DateLayout = "2006-01-02"
)

// ErrStorageUnavailable indicates the user document could not be read,
// parsed, or written. Callers match it with errors.Is.
var ErrStorageUnavailable = errors.New("user database unavailable")

// usernamePattern matches valid tunnel usernames. The pattern mirrors the
// useradd naming rules, since every tunnel user is mirrored as a system
// login.
var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)

// ValidUsername reports whether name is acceptable as a tunnel username.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// User represents a single tunnel user account as stored on disk.
//
// The password is stored in plaintext: the provisioning step feeds it to
// chpasswd, which needs the clear value.
type User struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	Created        string `json:"created"`
	LastModified   string `json:"last_modified,omitempty"`
	Expires        string `json:"expires,omitempty"`
	MaxConnections int    `json:"max_connections"`
	Active         bool   `json:"active"`
}

// Status derives the display status of the account at the given time.
//
// Inactive accounts report "Inactive". Accounts with an expiry date in the
// past report "Expired"; future expiries report "Active (Nd left)" where N
// is the number of whole or partial days remaining. Accounts without an
// expiry, or with an unparseable one, report "Active".
func (u *User) Status(now time.Time) string {
	if !u.Active {
		return "Inactive"
	}
	if u.Expires == "" {
		return "Active"
	}
	expiry, err := time.ParseInLocation(DateLayout, u.Expires, now.Location())
	if err != nil {
		return "Active"
	}
	if now.After(expiry) {
		return "Expired"
	}
	daysLeft := int(math.Ceil(expiry.Sub(now).Hours() / 24))
	return fmt.Sprintf("Active (%dd left)", daysLeft)
}

// Expired reports whether the account has an expiry date in the past.
func (u *User) Expired(now time.Time) bool {
	if u.Expires == "" {
		return false
	}
	expiry, err := time.ParseInLocation(DateLayout, u.Expires, now.Location())
	if err != nil {
		return false
	}
	return now.After(expiry)
}

// Document is the full on-disk user database: the ordered user list plus
// the free-form console settings object.
type Document struct {
	Users    []User         `json:"users"`
	Settings map[string]any `json:"settings"`
}

// FindUser returns the index of the user with the given username, or -1.
// Matching is case-sensitive and exact.
func (d *Document) FindUser(username string) int {
	for i := range d.Users {
		if d.Users[i].Username == username {
			return i
		}
	}
	return -1
}

// Store reads and writes the user document at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store bound to the given document path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path the store is bound to.
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the user document.
//
// All failures are wrapped in ErrStorageUnavailable. A missing file is
// additionally detectable with errors.Is(err, os.ErrNotExist) so that
// callers that are explicitly tolerant of a first-run empty database can
// distinguish it from a corrupt or unreadable one.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrStorageUnavailable, s.path, err)
	}
	if doc.Settings == nil {
		doc.Settings = map[string]any{}
	}
	return doc, nil
}

// Save writes the full document, replacing whatever is on disk.
//
// The document is written to a temporary file and renamed into place so a
// concurrent reader never observes a partial write.
func (s *Store) Save(doc *Document) error {
	if doc.Users == nil {
		doc.Users = []User{}
	}
	if doc.Settings == nil {
		doc.Settings = map[string]any{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		os.Remove(tempFile) // Clean up temp file
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Backup writes a snapshot of the current document to backupPath, with
// the backup time and a format version recorded alongside the data.
func (s *Store) Backup(backupPath string, now time.Time) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	snapshot := map[string]any{
		"users":     doc.Users,
		"settings":  doc.Settings,
		"timestamp": now.Format(TimeLayout),
		"version":   "1.0",
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}
