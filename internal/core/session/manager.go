// Package session issues, validates and revokes bearer session tokens.
//
// Sessions live in process memory only. Every successful Authenticate is
// both a liveness check (absolute lifetime) and a quota check against the
// rate limiter; both happen under the session store lock, which is always
// taken before the limiter's.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/core/ephemeral"
)

// DefaultLifetime is the absolute session lifetime.
const DefaultLifetime = 24 * time.Hour

const (
	tokenBytes    = 16
	tokenAttempts = 3
)

// PasswordVerifier checks a presented password against a stored hash.
type PasswordVerifier interface {
	Verify(stored, presented string) bool
}

// RequestLimiter is the quota the manager charges on every Authenticate.
type RequestLimiter interface {
	CheckAndIncrement(identity string) (bool, error)
	Count(identity string) int
}

// Manager owns the live session pool.
type Manager struct {
	users    domain.UserStore
	verifier PasswordVerifier
	limiter  RequestLimiter
	store    *ephemeral.Store[domain.Session]
	lifetime time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLifetime sets the absolute session lifetime.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager with an empty session pool.
func NewManager(users domain.UserStore, verifier PasswordVerifier, limiter RequestLimiter, opts ...Option) *Manager {
	m := &Manager{
		users:    users,
		verifier: verifier,
		limiter:  limiter,
		lifetime: DefaultLifetime,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.store = ephemeral.New[domain.Session](ephemeral.WithClock(m.now))
	return m
}

// Login verifies the credentials and opens a new session.
// An unknown user and a bad password both yield ErrWrongPassword so that
// usernames cannot be enumerated.
func (m *Manager) Login(ctx context.Context, username, password string) (domain.Session, error) {
	user, err := m.users.FindUser(ctx, username)
	if err != nil {
		return domain.Session{}, fmt.Errorf("login %q: find user: %w", username, err)
	}
	if user == nil {
		return domain.Session{}, fmt.Errorf("login %q: %w", username, domain.ErrWrongPassword)
	}

	// Hashing is slow; it must finish before the store is touched.
	if !m.verifier.Verify(user.PasswordHash, password) {
		return domain.Session{}, fmt.Errorf("login %q: %w", username, domain.ErrWrongPassword)
	}

	for range tokenAttempts {
		token, err := newToken()
		if err != nil {
			return domain.Session{}, fmt.Errorf("login %q: generate token: %w", username, err)
		}

		s := domain.Session{
			Username:     user.Username,
			Email:        user.Email,
			Token:        token,
			IssuedAt:     m.now(),
			RequestCount: m.limiter.Count(user.Username),
		}

		inserted := false
		err = m.store.Update(token, func(e *ephemeral.Entry[domain.Session]) (domain.Session, ephemeral.Decision) {
			if e != nil {
				return domain.Session{}, ephemeral.Keep
			}
			inserted = true
			return s, ephemeral.Replace
		})
		if err != nil {
			return domain.Session{}, fmt.Errorf("login %q: store session: %w", username, err)
		}
		if inserted {
			return s, nil
		}
	}

	return domain.Session{}, fmt.Errorf("login %q: token collision: %w", username, domain.ErrInternal)
}

// Authenticate validates token and charges one request to its owner.
func (m *Manager) Authenticate(token string) (domain.Session, error) {
	var (
		result  domain.Session
		failure error
	)

	err := m.store.Update(token, func(e *ephemeral.Entry[domain.Session]) (domain.Session, ephemeral.Decision) {
		if e == nil {
			failure = domain.ErrNotLogin
			return domain.Session{}, ephemeral.Keep
		}

		if m.now().Sub(e.Value.IssuedAt) >= m.lifetime {
			m.logger.Debug().
				Str("username", e.Value.Username).
				Time("issued_at", e.Value.IssuedAt).
				Msg("Session expired")
			failure = domain.ErrExpired
			return domain.Session{}, ephemeral.Delete
		}

		allowed, err := m.limiter.CheckAndIncrement(e.Value.Username)
		if err != nil {
			failure = err
			return domain.Session{}, ephemeral.Keep
		}
		if !allowed {
			failure = domain.ErrTooFrequent
			return domain.Session{}, ephemeral.Keep
		}

		e.Value.RequestCount = m.limiter.Count(e.Value.Username)
		result = e.Value
		return domain.Session{}, ephemeral.Keep
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("authenticate: %w", err)
	}
	if failure != nil {
		return domain.Session{}, fmt.Errorf("authenticate: %w", failure)
	}
	return result, nil
}

// Logout revokes token. A second call for the same token fails with ErrNotLogin.
func (m *Manager) Logout(token string) (domain.Session, error) {
	s, ok := m.store.Remove(token)
	if !ok {
		return domain.Session{}, fmt.Errorf("logout: %w", domain.ErrNotLogin)
	}
	return s, nil
}

// Len returns the number of sessions currently held, expired ones included
// until they are next looked up.
func (m *Manager) Len() int {
	return m.store.Len()
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
