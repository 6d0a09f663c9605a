package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ErrNotAuthenticated is returned when no usable session record exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// SessionManager reads and writes the session record and runs the login,
// logout and change-role flows.
type SessionManager interface {
	RequestorProvider
	// Current returns the stored user, or ErrNotAuthenticated when the
	// record is missing or malformed, lacks an id, or carries an expired
	// token. A store that reports storage.ErrCorrupt counts as malformed.
	Current(ctx context.Context) (*models.User, error)
	CheckAuth(ctx context.Context) bool
	Login(ctx context.Context, creds models.Credentials) (*models.User, error)
	ChangeRole(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
}

type sessionManager struct {
	kv     KVStore
	key    string
	auth   AuthGateway
	events EventLogger
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewSessionManager creates a SessionManager storing the record under key.
// auth may be nil when only reading the session is needed.
func NewSessionManager(kv KVStore, key string, auth AuthGateway, events EventLogger, log logrus.FieldLogger) SessionManager {
	if key == "" {
		key = models.SessionKey
	}
	if log == nil {
		log = discardLogger()
	}
	return &sessionManager{
		kv:     kv,
		key:    key,
		auth:   auth,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

func (m *sessionManager) Current(ctx context.Context) (*models.User, error) {
	raw, ok, err := m.kv.Get(ctx, m.key)
	if errors.Is(err, storage.ErrCorrupt) {
		m.log.WithError(err).Warn("corrupt session store")
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if !ok {
		return nil, ErrNotAuthenticated
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.log.WithError(err).Warn("malformed session record")
		return nil, ErrNotAuthenticated
	}
	if user.ID == "" {
		return nil, ErrNotAuthenticated
	}
	if user.Token != "" && tokenExpired(user.Token, m.now()) {
		m.log.WithField("user_id", user.ID).Info("session token expired")
		return nil, ErrNotAuthenticated
	}
	return &user, nil
}

// tokenExpired reports whether a bearer token's exp claim is in the past.
// The signature is not verified here; the server does that. A token that
// cannot be parsed is treated as expired.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	return !claims.VerifyExpiresAt(now.Unix(), false)
}

func (m *sessionManager) CheckAuth(ctx context.Context) bool {
	_, err := m.Current(ctx)
	return err == nil
}

func (m *sessionManager) RequestorID(ctx context.Context) (string, error) {
	user, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (m *sessionManager) save(ctx context.Context, user models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.kv.Set(ctx, m.key, string(data)); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (m *sessionManager) Login(ctx context.Context, creds models.Credentials) (*models.User, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}
	if m.auth == nil {
		return nil, fmt.Errorf("logging in: auth gateway not configured")
	}

	user, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.log.WithField("username", creds.Username).WithError(err).Error("login failed")
		return nil, fmt.Errorf("logging in: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("logging in: server returned a user without id")
	}
	if err := m.save(ctx, user); err != nil {
		return nil, err
	}

	logEvent(m.events, "session.login", map[string]any{"user_id": user.ID, "username": user.Username})
	return &user, nil
}

func (m *sessionManager) ChangeRole(ctx context.Context) (*models.User, error) {
	if m.auth == nil {
		return nil, fmt.Errorf("changing role: auth gateway not configured")
	}
	current, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}

	user, err := m.auth.ChangeRole(ctx, current.ID)
	if err != nil {
		m.log.WithField("user_id", current.ID).WithError(err).Error("change role failed")
		return nil, fmt.Errorf("changing role: %w", err)
	}
	if user.ID == "" {
		user.ID = current.ID
	}
	if user.Token == "" {
		user.Token = current.Token
	}
	if err := m.save(ctx, user); err != nil {
		return nil, err
	}

	logEvent(m.events, "session.role_changed", map[string]any{
		"user_id": user.ID,
		"from":    current.RoleName,
		"to":      user.RoleName,
	})
	return &user, nil
}

func (m *sessionManager) Logout(ctx context.Context) error {
	var userID string
	if user, err := m.Current(ctx); err == nil {
		userID = user.ID
	}
	if err := m.kv.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	logEvent(m.events, "session.logout", map[string]any{"user_id": userID})
	return nil
}
