package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gx-admin/internal/provision"
	"gx-admin/internal/stats"
	"gx-admin/internal/userdb"
)

// DefaultMaxConnections is applied when a create request leaves the
// connection cap unset.
const DefaultMaxConnections = 3

// Store is the user document contract the manager drives: whole-document
// loads and saves, no partial patches. *userdb.Store satisfies it.
type Store interface {
	Load() (*userdb.Document, error)
	Save(*userdb.Document) error
}

// StatsReader supplies the per-user traffic summary joined into listings.
// It is read-only from the manager's point of view.
type StatsReader interface {
	UserUsage(ctx context.Context, username string) (stats.Usage, bool, error)
}

// Manager coordinates the user document and the system-account
// provisioner. All mutating operations serialize on one mutex: the save
// is a full-document overwrite, so two interleaved load-modify-save
// cycles would silently drop one of the writes.
type Manager struct {
	mu    sync.Mutex
	store Store
	prov  provision.Provisioner

	reader       StatsReader
	syncPassword bool
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithStatsReader joins traffic summaries into ListUsers output.
func WithStatsReader(r StatsReader) Option {
	return func(m *Manager) { m.reader = r }
}

// WithPasswordSync makes UpdateUser push password changes through the
// provisioner so the system login stays in step with the document. Off by
// default: historically the console only updated the document and the OS
// login kept the old password.
func WithPasswordSync() Option {
	return func(m *Manager) { m.syncPassword = true }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager over the given store and provisioner.
func NewManager(store Store, prov provision.Provisioner, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		prov:  prov,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRequest carries the inputs for CreateUser.
type CreateRequest struct {
	Username string
	Password string

	// Expires is an optional YYYY-MM-DD date. Empty means no expiry.
	Expires string

	// MaxConnections caps concurrent tunnel sessions. Zero means
	// DefaultMaxConnections.
	MaxConnections int

	// Active defaults to true when nil.
	Active *bool
}

// CreateUser adds a tunnel user to the document and provisions the
// mirrored system login.
//
// The document is saved before the system login is attempted. If
// provisioning fails, the just-added record is removed again
// (compensating action) and ErrProvisioning is returned. If that
// compensating save itself fails, ErrRollbackFailed is returned and the
// document keeps a record with no matching system login.
func (m *Manager) CreateUser(ctx context.Context, req CreateRequest) (*userdb.User, error) {
	if !userdb.ValidUsername(req.Username) {
		return nil, fmt.Errorf("%w: username must match [a-z_][a-z0-9_-]*", ErrValidation)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}
	if req.MaxConnections < 0 {
		return nil, fmt.Errorf("%w: max_connections must be positive", ErrValidation)
	}
	if req.Expires != "" {
		if _, err := time.Parse(userdb.DateLayout, req.Expires); err != nil {
			return nil, fmt.Errorf("%w: expires must be YYYY-MM-DD", ErrValidation)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadForWrite()
	if err != nil {
		return nil, err
	}
	if doc.FindUser(req.Username) >= 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrDuplicateUser, req.Username)
	}

	maxConn := req.MaxConnections
	if maxConn == 0 {
		maxConn = DefaultMaxConnections
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	now := m.now().Format(userdb.TimeLayout)
	user := userdb.User{
		Username:       req.Username,
		Password:       req.Password,
		Created:        now,
		LastModified:   now,
		Expires:        req.Expires,
		MaxConnections: maxConn,
		Active:         active,
	}

	doc.Users = append(doc.Users, user)
	if err := m.store.Save(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := m.prov.CreateAccount(ctx, req.Username, req.Password); err != nil {
		log.Printf("CreateUser: provisioning failed for '%s', rolling back: %v", req.Username, err)
		if rbErr := m.removeFromDocument(req.Username); rbErr != nil {
			log.Printf("CreateUser: ROLLBACK FAILED for '%s': %v", req.Username, rbErr)
			return nil, fmt.Errorf("%w: provisioning: %v, rollback: %w", ErrRollbackFailed, err, rbErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	log.Printf("CreateUser: created user '%s'", req.Username)
	return &user, nil
}

// Update carries the optional fields of UpdateUser. Nil fields keep their
// current values; a non-nil empty Expires clears the expiry.
type Update struct {
	Password       *string
	Expires        *string
	MaxConnections *int
	Active         *bool
}

// UpdateUser shallow-merges the provided fields onto the existing record
// and refreshes last_modified.
//
// Without WithPasswordSync a password change touches only the document,
// leaving the system login on its old password. With it, the new password
// is pushed through the provisioner after the save; a push failure is
// returned as ErrProvisioning but the document change stands.
func (m *Manager) UpdateUser(ctx context.Context, username string, upd Update) (*userdb.User, error) {
	if upd.Password != nil && *upd.Password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrValidation)
	}
	if upd.MaxConnections != nil && *upd.MaxConnections <= 0 {
		return nil, fmt.Errorf("%w: max_connections must be positive", ErrValidation)
	}
	if upd.Expires != nil && *upd.Expires != "" {
		if _, err := time.Parse(userdb.DateLayout, *upd.Expires); err != nil {
			return nil, fmt.Errorf("%w: expires must be YYYY-MM-DD", ErrValidation)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadForWrite()
	if err != nil {
		return nil, err
	}
	i := doc.FindUser(username)
	if i < 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrUserNotFound, username)
	}

	user := &doc.Users[i]
	if upd.Password != nil {
		user.Password = *upd.Password
	}
	if upd.Expires != nil {
		user.Expires = *upd.Expires
	}
	if upd.MaxConnections != nil {
		user.MaxConnections = *upd.MaxConnections
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}
	user.LastModified = m.now().Format(userdb.TimeLayout)

	if err := m.store.Save(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if m.syncPassword && upd.Password != nil {
		if err := m.prov.SetPassword(ctx, username, *upd.Password); err != nil {
			log.Printf("UpdateUser: password sync failed for '%s': %v", username, err)
			return nil, fmt.Errorf("%w: password sync: %w", ErrProvisioning, err)
		}
	}

	updated := *user
	return &updated, nil
}

// DeleteUser removes the record from the document, then removes the
// system login. The document removal is authoritative: a provisioner
// failure is logged and the delete still succeeds, because a lingering OS
// account is a lesser anomaly than a tunnel user that no longer appears
// in the document.
func (m *Manager) DeleteUser(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadForWrite()
	if err != nil {
		return err
	}
	i := doc.FindUser(username)
	if i < 0 {
		return fmt.Errorf("%w: '%s'", ErrUserNotFound, username)
	}

	doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
	if err := m.store.Save(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if err := m.prov.DeleteAccount(ctx, username); err != nil {
		// User might not exist in system
		log.Printf("DeleteUser: system account removal failed for '%s': %v", username, err)
	}

	log.Printf("DeleteUser: deleted user '%s'", username)
	return nil
}

// UserView is a user record with the derived status and joined traffic
// summary, as rendered by the console's user table.
type UserView struct {
	userdb.User
	Status         string `json:"status"`
	Connections    int64  `json:"connections"`
	DownloadBytes  int64  `json:"download_bytes"`
	UploadBytes    int64  `json:"upload_bytes"`
	LastConnection string `json:"last_connection"`
}

// ListUsers returns every record with status and usage joined in. A
// missing document reads as an empty list; any other load failure is
// surfaced. Stats lookups fail soft to zero values so a broken statistics
// database never hides the user list.
func (m *Manager) ListUsers(ctx context.Context) ([]UserView, error) {
	m.mu.Lock()
	doc, err := m.store.Load()
	m.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			doc = &userdb.Document{}
		} else {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
	}

	now := m.now()
	views := make([]UserView, 0, len(doc.Users))
	for i := range doc.Users {
		view := UserView{
			User:           doc.Users[i],
			Status:         doc.Users[i].Status(now),
			LastConnection: "Never",
		}
		if m.reader != nil {
			usage, ok, err := m.reader.UserUsage(ctx, view.Username)
			if err != nil {
				log.Printf("ListUsers: stats lookup failed for '%s': %v", view.Username, err)
			} else if ok {
				view.Connections = usage.Connections
				view.DownloadBytes = usage.DownloadBytes
				view.UploadBytes = usage.UploadBytes
				if usage.LastConnection != "" {
					view.LastConnection = usage.LastConnection
				}
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// GetUser returns a single record by username.
func (m *Manager) GetUser(username string) (*userdb.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.loadForWrite()
	if err != nil {
		return nil, err
	}
	i := doc.FindUser(username)
	if i < 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrUserNotFound, username)
	}
	user := doc.Users[i]
	return &user, nil
}

// loadForWrite loads the document for a load-modify-save cycle. A missing
// file is a legitimate first-run state and reads as an empty document; an
// unreadable or unparseable file aborts the operation, since overwriting
// it could destroy records.
func (m *Manager) loadForWrite() (*userdb.Document, error) {
	doc, err := m.store.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &userdb.Document{Settings: map[string]any{}}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return doc, nil
}

// removeFromDocument reloads the document and strips the named user. Used
// as the compensating step when provisioning fails after a save.
func (m *Manager) removeFromDocument(username string) error {
	doc, err := m.loadForWrite()
	if err != nil {
		return err
	}
	i := doc.FindUser(username)
	if i < 0 {
		return nil
	}
	doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
	return m.store.Save(doc)
}
