// Package auth establishes and caches source sessions.
package auth

import (
	"context"
	"net/http"
	"time"

	"EditaisScanner/internal/infrastructure/httpclient"
)

const (
	// DefaultTokenLifetime applies when a token endpoint omits expires_in.
	DefaultTokenLifetime = 300 * time.Second
	// ExpirySkew is subtracted from every reported lifetime.
	ExpirySkew = 30 * time.Second
)

// Session is the material a source needs on each request.
type Session struct {
	Headers   map[string]string `json:"headers,omitempty"`
	Cookies   []*http.Cookie    `json:"cookies,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	// ExpiresAt is zero for sessions that never expire (Basic Auth).
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session must be re-established at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Apply copies the session material onto an outbound request.
func (s *Session) Apply(req *httpclient.Request) {
	if s == nil {
		return
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	req.Cookies = append(req.Cookies, s.Cookies...)
}

// Bearer builds a session carrying an Authorization bearer header.
func Bearer(token string, expiresIn time.Duration, now time.Time) *Session {
	return &Session{
		Headers:   map[string]string{"Authorization": "Bearer " + token},
		ExpiresAt: ExpiryFrom(expiresIn, now),
	}
}

// ExpiryFrom converts a reported lifetime into an absolute expiry with skew.
func ExpiryFrom(expiresIn time.Duration, now time.Time) time.Time {
	if expiresIn <= 0 {
		expiresIn = DefaultTokenLifetime
	}
	lifetime := expiresIn - ExpirySkew
	if lifetime <= 0 {
		lifetime = expiresIn / 2
	}
	return now.Add(lifetime)
}

// Authenticator produces a fresh session. Implementations are interchangeable.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (*Session, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context) (*Session, error) {
	return f(ctx)
}

func merge(dst, src *Session) *Session {
	if dst == nil {
		return src
	}
	if src == nil {
		return dst
	}
	out := *dst
	out.Headers = make(map[string]string, len(dst.Headers)+len(src.Headers))
	for k, v := range dst.Headers {
		out.Headers[k] = v
	}
	for k, v := range src.Headers {
		out.Headers[k] = v
	}
	out.Cookies = append(append([]*http.Cookie{}, dst.Cookies...), src.Cookies...)
	if src.UserAgent != "" {
		out.UserAgent = src.UserAgent
	}
	if !src.ExpiresAt.IsZero() && (out.ExpiresAt.IsZero() || src.ExpiresAt.Before(out.ExpiresAt)) {
		out.ExpiresAt = src.ExpiresAt
	}
	return &out
}
