// Package cache shares source sessions between process instances through Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"EditaisScanner/internal/infrastructure/auth"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// SessionCache stores auth sessions as JSON with a TTL matching their lifetime.
type SessionCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// Connect dials Redis and verifies it answers.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*SessionCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	cache := NewSessionCache(rdb, logger)
	cache.logger.Info("connected to redis", "addr", cfg.Addr)
	return cache, nil
}

// NewSessionCache wraps an existing client.
func NewSessionCache(rdb *redis.Client, logger *slog.Logger) *SessionCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionCache{rdb: rdb, logger: logger.With("component", "session_cache")}
}

// Load returns the session at key or auth.ErrCacheMiss.
func (c *SessionCache) Load(ctx context.Context, key string) (*auth.Session, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	var session auth.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		c.logger.Warn("dropping unreadable session", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return nil, auth.ErrCacheMiss
	}
	return &session, nil
}

// Store saves session under key. A zero ttl keeps it until deleted.
func (c *SessionCache) Store(ctx context.Context, key string, session *auth.Session, ttl time.Duration) error {
	if ttl < 0 {
		return nil
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *SessionCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *SessionCache) Close() error {
	return c.rdb.Close()
}
