package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/infrastructure/metrics"
)

// ErrCacheMiss is returned by a Cache that holds no session for a key.
var ErrCacheMiss = errors.New("session not cached")

// CacheKeyPrefix namespaces shared session entries.
const CacheKeyPrefix = "editais:session:"

// Cache shares sessions between process instances.
type Cache interface {
	Load(ctx context.Context, key string) (*Session, error)
	Store(ctx context.Context, key string, session *Session, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Manager owns one source's session: it caches, refreshes on expiry and
// re-authenticates once when the source rejects a call.
type Manager struct {
	source string
	auth   Authenticator
	cache  Cache
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

// NewManager builds a manager. cache may be nil for in-memory only.
func NewManager(source string, authenticator Authenticator, cache Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		source: source,
		auth:   authenticator,
		cache:  cache,
		logger: logger.With("component", "auth", "source", source),
		now:    time.Now,
	}
}

func (m *Manager) cacheKey() string {
	return CacheKeyPrefix + m.source
}

// Session returns a valid session, establishing one if needed.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.current != nil && !m.current.Expired(now) {
		return m.current, nil
	}

	if m.cache != nil {
		cached, err := m.cache.Load(ctx, m.cacheKey())
		switch {
		case err == nil && !cached.Expired(now):
			m.logger.Debug("using shared session")
			m.current = cached
			return cached, nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			m.logger.Warn("session cache unavailable", "error", err)
		}
	}

	session, err := m.auth.Authenticate(ctx)
	if err != nil {
		metrics.AuthenticationsTotal.WithLabelValues(m.source, "failure").Inc()
		if errors.Is(err, domain.ErrAuthentication) {
			return nil, fmt.Errorf("%s: %w", m.source, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrAuthentication, m.source, err)
	}
	metrics.AuthenticationsTotal.WithLabelValues(m.source, "success").Inc()
	m.logger.Info("session established", "expires_at", session.ExpiresAt)
	m.current = session

	if m.cache != nil {
		ttl := time.Duration(0)
		if !session.ExpiresAt.IsZero() {
			ttl = session.ExpiresAt.Sub(now)
		}
		if err := m.cache.Store(ctx, m.cacheKey(), session, ttl); err != nil {
			m.logger.Warn("failed to share session", "error", err)
		}
	}
	return session, nil
}

// Invalidate drops the current session locally and in the shared cache.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.Delete(ctx, m.cacheKey()); err != nil {
			m.logger.Warn("failed to drop shared session", "error", err)
		}
	}
}

// Do runs fn with a valid session. A rejected session or a challenge page
// invalidates the session and fn is retried exactly once.
func (m *Manager) Do(ctx context.Context, fn func(*Session) error) error {
	session, err := m.Session(ctx)
	if err != nil {
		return err
	}

	err = fn(session)
	if !needsReauth(err) {
		return err
	}

	m.logger.Info("session rejected, re-authenticating", "error", err)
	m.Invalidate(ctx)

	session, err = m.Session(ctx)
	if err != nil {
		return err
	}
	err = fn(session)
	if needsReauth(err) {
		if errors.Is(err, domain.ErrAuthentication) {
			return fmt.Errorf("%s: rejected after re-authentication: %w", m.source, err)
		}
		return fmt.Errorf("%w: %s: rejected after re-authentication: %w", domain.ErrAuthentication, m.source, err)
	}
	return err
}

func needsReauth(err error) bool {
	return errors.Is(err, httpclient.ErrSessionRejected) || errors.Is(err, domain.ErrChallenge)
}
