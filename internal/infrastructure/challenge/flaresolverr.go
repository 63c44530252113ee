// Package challenge talks to a FlareSolverr-compatible challenge resolver.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/httpclient"
)

// ErrUnsolved is returned when the resolver answers without a solution.
var ErrUnsolved = errors.New("challenge not solved")

const defaultMaxTimeout = 60 * time.Second

type solveRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int64  `json:"maxTimeout"`
}

type solveResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		URL       string `json:"url"`
		Status    int    `json:"status"`
		UserAgent string `json:"userAgent"`
		Cookies   []struct {
			Name     string  `json:"name"`
			Value    string  `json:"value"`
			Domain   string  `json:"domain"`
			Path     string  `json:"path"`
			Expires  float64 `json:"expires"`
			HTTPOnly bool    `json:"httpOnly"`
			Secure   bool    `json:"secure"`
		} `json:"cookies"`
	} `json:"solution"`
}

// FlareSolverr resolves anti-bot challenges by driving a remote browser.
type FlareSolverr struct {
	endpoint   string
	maxTimeout time.Duration
	client     *httpclient.Client
	logger     *slog.Logger
}

// NewFlareSolverr builds a resolver client for baseURL (e.g. http://flaresolverr:8191).
func NewFlareSolverr(baseURL string, maxTimeout time.Duration, logger *slog.Logger) *FlareSolverr {
	if maxTimeout <= 0 {
		maxTimeout = defaultMaxTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := httpclient.New(httpclient.Config{
		Source:      "flaresolverr",
		MaxAttempts: 1,
		Timeout:     maxTimeout + 10*time.Second,
	}, logger)
	return &FlareSolverr{
		endpoint:   strings.TrimRight(baseURL, "/") + "/v1",
		maxTimeout: maxTimeout,
		client:     client,
		logger:     logger.With("component", "flaresolverr"),
	}
}

// Solve asks the resolver to load target and returns its cookies and user agent.
func (f *FlareSolverr) Solve(ctx context.Context, target string) (auth.Clearance, error) {
	resp, err := f.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    f.endpoint,
		JSON:   solveRequest{Cmd: "request.get", URL: target, MaxTimeout: f.maxTimeout.Milliseconds()},
	})
	if err != nil {
		return auth.Clearance{}, fmt.Errorf("flaresolverr: %w", err)
	}

	var out solveResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return auth.Clearance{}, fmt.Errorf("flaresolverr: %w", err)
	}
	if out.Status != "ok" {
		return auth.Clearance{}, fmt.Errorf("%w: %s: %s", ErrUnsolved, out.Status, out.Message)
	}

	clearance := auth.Clearance{UserAgent: out.Solution.UserAgent}
	for _, c := range out.Solution.Cookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		clearance.Cookies = append(clearance.Cookies, cookie)
	}
	f.logger.Debug("challenge solved", "url", target, "cookies", len(clearance.Cookies))
	return clearance, nil
}
