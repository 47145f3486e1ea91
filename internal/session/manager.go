// Package session holds the operator session context: populated at login,
// cleared at logout and handed to whatever needs the operator's scope.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/domain"
	"sendwatch/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultKey is the store key of the operator profile when none is given.
const DefaultKey = "default"

type Manager struct {
	store  domain.SessionStore
	auth   domain.AuthBackend
	key    string
	ttl    time.Duration
	logger zerolog.Logger

	mu      sync.RWMutex
	current *models.Session
}

func NewManager(store domain.SessionStore, auth domain.AuthBackend, key string, ttl time.Duration, logger *zerolog.Logger) *Manager {
	if key == "" {
		key = DefaultKey
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "session").Logger()
	}
	return &Manager{store: store, auth: auth, key: key, ttl: ttl, logger: l}
}

// Login authenticates against the backend and stores the resulting session.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Application("login", "email and password are required")
	}

	token, operator, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s := &models.Session{
		ID:        uuid.NewString(),
		Token:     token,
		Operator:  *operator,
		CreatedAt: time.Now(),
	}
	if err := m.store.SetSession(ctx, m.key, s, m.ttl); err != nil {
		// the session still works for this process
		m.logger.Warn().Err(err).Msg("failed to persist session")
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Info().Str("email", s.Operator.Email).Int("orgs", len(s.Operator.Orgs)).Msg("operator logged in")
	return s, nil
}

// Logout drops the session from memory and from the store.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if err := m.store.ClearSession(ctx, m.key); err != nil {
		return err
	}
	if prev != nil {
		m.logger.Info().Str("email", prev.Operator.Email).Msg("operator logged out")
	}
	return nil
}

// Restore loads a stored session and verifies its token against the profile
// endpoint. A rejected token removes the stored session.
func (m *Manager) Restore(ctx context.Context) (*models.Session, error) {
	if s, err := m.Current(); err == nil {
		return s, nil
	}

	s, err := m.store.GetSession(ctx, m.key)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Token == "" {
		return nil, apperr.ErrNotAuthenticated
	}

	operator, err := m.auth.Profile(ctx, s.Token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthenticated {
			_ = m.store.ClearSession(ctx, m.key)
			return nil, apperr.ErrNotAuthenticated
		}
		return nil, err
	}

	// the organization scope comes from login; profile only refreshes identity
	orgs := s.Operator.Orgs
	s.Operator = *operator
	if len(operator.Orgs) == 0 {
		s.Operator.Orgs = orgs
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s, nil
}

// Current returns the active session or ErrNotAuthenticated.
func (m *Manager) Current() (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	return m.current, nil
}

// Orgs is the scope filter of the active session.
func (m *Manager) Orgs(ctx context.Context) ([]string, error) {
	s, err := m.Current()
	if err != nil {
		return nil, err
	}
	return s.Orgs(), nil
}

// Token is the bearer token of the active session, "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.Token
}

// AccountID is the backend account behind the active session. Sessions from
// a login response without an account id cannot own customers.
func (m *Manager) AccountID(ctx context.Context) (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	if s.Operator.ID == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "account", "account id missing, log in again")
	}
	return s.Operator.ID, nil
}
