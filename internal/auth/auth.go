// Package auth verifies the console administrator's credentials, issues
// expiring session tokens, and rate-limits login attempts.
//
// The admin credential lives in the settings object of the user document
// (settings.admin_username / settings.admin_password). The stored
// password may be a bcrypt hash; a plain value is also accepted for
// documents seeded by older installs, which stored it in the clear.
package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Defaults applied when the settings object omits a value.
const (
	DefaultAdminUsername  = "admin"
	DefaultSessionTimeout = time.Hour
)

// Errors returned by Authenticator operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrSessionExpired     = errors.New("session expired or unknown")
)

// SecurityRecorder receives security events for the audit log. The
// statistics store satisfies it.
type SecurityRecorder interface {
	RecordSecurityEvent(ctx context.Context, eventType, clientIP, username, description string) error
}

// Credentials is the admin login configuration extracted from the user
// document settings.
type Credentials struct {
	Username string
	// Password is either a bcrypt hash or a legacy plaintext value.
	Password string
}

// CredentialsFromSettings pulls the admin login out of a settings map.
// Missing fields fall back to defaults; a missing password disables login
// entirely (Verify never matches an empty stored password).
func CredentialsFromSettings(settings map[string]any) Credentials {
	creds := Credentials{Username: DefaultAdminUsername}
	if v, ok := settings["admin_username"].(string); ok && v != "" {
		creds.Username = v
	}
	if v, ok := settings["admin_password"].(string); ok {
		creds.Password = v
	}
	return creds
}

// HashPassword returns a bcrypt hash suitable for storing as
// settings.admin_password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verify checks password against the stored value, accepting either a
// bcrypt hash or a legacy plaintext credential.
func (c Credentials) verify(username, password string) bool {
	if c.Password == "" || username != c.Username {
		return false
	}
	if strings.HasPrefix(c.Password, "$2a$") || strings.HasPrefix(c.Password, "$2b$") {
		return bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	}
	return password == c.Password
}

// Session is one issued admin session.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Config tunes the Authenticator from the security section of the
// configuration document.
type Config struct {
	// SessionTimeout is how long an issued session stays valid.
	SessionTimeout time.Duration
	// MaxLoginAttempts is the per-client burst before throttling.
	MaxLoginAttempts int
	// LimitEnabled gates attempt throttling (security.fail2ban_enabled).
	LimitEnabled bool
}

// ConfigFromDocument reads the security section of the configuration
// document, applying defaults for anything missing.
func ConfigFromDocument(doc map[string]any) Config {
	cfg := Config{
		SessionTimeout:   DefaultSessionTimeout,
		MaxLoginAttempts: 3,
		LimitEnabled:     true,
	}
	security, ok := doc["security"].(map[string]any)
	if !ok {
		return cfg
	}
	if v, ok := security["session_timeout"].(float64); ok && v > 0 {
		cfg.SessionTimeout = time.Duration(v) * time.Second
	}
	if v, ok := security["max_login_attempts"].(float64); ok && v > 0 {
		cfg.MaxLoginAttempts = int(v)
	}
	if v, ok := security["fail2ban_enabled"].(bool); ok {
		cfg.LimitEnabled = v
	}
	return cfg
}

// Authenticator validates admin logins and tracks issued sessions.
// Sessions are held in memory: the console is a single process and a
// restart logging everyone out is acceptable.
type Authenticator struct {
	creds    Credentials
	cfg      Config
	recorder SecurityRecorder
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewAuthenticator returns an Authenticator for the given credentials and
// security config. recorder may be nil.
func NewAuthenticator(creds Credentials, cfg Config, recorder SecurityRecorder) *Authenticator {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = 3
	}
	return &Authenticator{
		creds:    creds,
		cfg:      cfg,
		recorder: recorder,
		now:      time.Now,
		sessions: map[string]time.Time{},
		limiters: map[string]*rate.Limiter{},
	}
}

// SetClock overrides the time source. Used by tests.
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

// limiter returns the attempt limiter for one client. Each client gets a
// burst of MaxLoginAttempts, refilling one attempt per minute.
func (a *Authenticator) limiter(clientIP string) *rate.Limiter {
	l, ok := a.limiters[clientIP]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute), a.cfg.MaxLoginAttempts)
		a.limiters[clientIP] = l
	}
	return l
}

// Login validates the credentials and issues a session token. Both
// rejections and grants are recorded to the security log when a recorder
// is configured.
func (a *Authenticator) Login(ctx context.Context, username, password, clientIP string) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.LimitEnabled && !a.limiter(clientIP).Allow() {
		a.record(ctx, "login_throttled", clientIP, username, "too many login attempts")
		return nil, ErrTooManyAttempts
	}

	if !a.creds.verify(username, password) {
		log.Printf("Login: failed login attempt for '%s' from %s", username, clientIP)
		a.record(ctx, "login_failed", clientIP, username, "invalid credentials")
		return nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	expires := a.now().Add(a.cfg.SessionTimeout)
	a.sessions[token] = expires

	log.Printf("Login: successful login for '%s' from %s", username, clientIP)
	a.record(ctx, "login_success", clientIP, username, "admin login")
	return &Session{Token: token, ExpiresAt: expires}, nil
}

// Validate checks a session token, pruning it if expired.
func (a *Authenticator) Validate(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	expires, ok := a.sessions[token]
	if !ok {
		return ErrSessionExpired
	}
	if a.now().After(expires) {
		delete(a.sessions, token)
		return ErrSessionExpired
	}
	return nil
}

// Logout invalidates a session token. Unknown tokens are ignored.
func (a *Authenticator) Logout(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}

func (a *Authenticator) record(ctx context.Context, eventType, clientIP, username, description string) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordSecurityEvent(ctx, eventType, clientIP, username, description); err != nil {
		log.Printf("auth: failed to record security event: %v", err)
	}
}
