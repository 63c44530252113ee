package auth

import (
	"context"
	"log/slog"
	"net/http"

	"EditaisScanner/internal/infrastructure/httpclient"
)

// Clearance is what a challenge resolver hands back for a protected URL.
type Clearance struct {
	Cookies   []*http.Cookie
	UserAgent string
}

// Solver obtains clearance for a URL guarded by an anti-bot interstitial.
type Solver interface {
	Solve(ctx context.Context, url string) (Clearance, error)
}

// ChallengePriming asks the solver for clearance before the wrapped login.
// A missing or failing solver only degrades the session. When Client is set
// the clearance is also seeded into its cookie jar for the wrapped login.
type ChallengePriming struct {
	Solver Solver
	Client *httpclient.Client
	URL    string
	Next   Authenticator
	Logger *slog.Logger
}

// Authenticate primes clearance then delegates.
func (c ChallengePriming) Authenticate(ctx context.Context) (*Session, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var primed *Session
	if c.Solver == nil {
		logger.Warn("challenge resolver not configured, continuing without clearance", "url", c.URL)
	} else if clearance, err := c.Solver.Solve(ctx, c.URL); err != nil {
		logger.Warn("challenge resolver unavailable, continuing without clearance", "url", c.URL, "error", err)
	} else {
		logger.Debug("clearance obtained", "url", c.URL, "cookies", len(clearance.Cookies))
		primed = &Session{Cookies: clearance.Cookies, UserAgent: clearance.UserAgent}
		if c.Client != nil {
			if err := c.Client.Prime(c.URL, clearance.Cookies, clearance.UserAgent); err != nil {
				logger.Warn("failed to seed clearance", "error", err)
			}
		}
	}

	if c.Next == nil {
		if primed == nil {
			primed = &Session{}
		}
		return primed, nil
	}

	session, err := c.Next.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return merge(primed, session), nil
}
