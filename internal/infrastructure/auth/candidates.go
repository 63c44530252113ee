package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/normalize"
)

// DefaultTokenPaths are the JMESPath candidates tried against a login answer.
var DefaultTokenPaths = []string{
	"token",
	"access_token",
	"accessToken",
	"data.token",
	"data.access_token",
	"data.accessToken",
}

var defaultExpiryPaths = []string{"expires_in", "expiresIn", "data.expires_in", "data.expiresIn"}

// CandidateLogin posts each payload template to each endpoint until one
// answer carries a token. Templates may reference {username} and {password}.
type CandidateLogin struct {
	Client     *httpclient.Client
	Endpoints  []string
	Payloads   []map[string]string
	TokenPaths []string
	Username   string
	Password   string
	Logger     *slog.Logger
}

// Authenticate walks the endpoint x payload grid.
func (c CandidateLogin) Authenticate(ctx context.Context) (*Session, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	paths := c.TokenPaths
	if len(paths) == 0 {
		paths = DefaultTokenPaths
	}

	var lastErr error
	for _, endpoint := range c.Endpoints {
		for _, template := range c.Payloads {
			payload := c.render(template)
			resp, err := c.Client.Do(ctx, httpclient.Request{Method: http.MethodPost, URL: endpoint, JSON: payload})
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if errors.Is(err, domain.ErrChallenge) {
					return nil, err
				}
				logger.Debug("login candidate rejected", "endpoint", endpoint, "keys", keysOf(template), "error", err)
				lastErr = err
				continue
			}

			var body map[string]any
			if err := resp.DecodeJSON(&body); err != nil {
				lastErr = err
				continue
			}
			rec := normalize.NewRecord(body, nil, logger)
			token := rec.String(paths...)
			if token == "" {
				logger.Debug("login answered without token", "endpoint", endpoint, "keys", keysOf(body))
				continue
			}

			var expiresIn time.Duration
			if secs := rec.Float(defaultExpiryPaths...); secs != nil {
				expiresIn = time.Duration(*secs) * time.Second
			}
			logger.Info("login candidate accepted", "endpoint", endpoint)
			return Bearer(token, expiresIn, time.Now()), nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: no login candidate succeeded: %w", domain.ErrAuthentication, lastErr)
	}
	return nil, fmt.Errorf("%w: no login candidate succeeded", domain.ErrAuthentication)
}

func (c CandidateLogin) render(template map[string]string) map[string]string {
	out := make(map[string]string, len(template))
	replacer := strings.NewReplacer("{username}", c.Username, "{password}", c.Password)
	for k, v := range template {
		out[k] = replacer.Replace(v)
	}
	return out
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
