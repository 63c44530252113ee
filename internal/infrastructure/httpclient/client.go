package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/metrics"
)

const (
	// MaxResponseSize caps buffered response bodies (10MB).
	MaxResponseSize = 10 * 1024 * 1024

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrSessionRejected is returned for 401/403 answers that are not challenge pages.
var ErrSessionRejected = fmt.Errorf("%w: session rejected", domain.ErrAuthentication)

// Config holds per-source transport settings.
type Config struct {
	Source      string
	MinInterval time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
	UserAgent   string
	Headers     map[string]string
}

// DefaultConfig returns conservative defaults for a named source.
func DefaultConfig(source string) Config {
	return Config{
		Source:      source,
		MinInterval: 500 * time.Millisecond,
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		Timeout:     30 * time.Second,
		UserAgent:   defaultUserAgent,
	}
}

// Request describes one logical call; the body is buffered so retries can replay it.
type Request struct {
	Method     string
	URL        string
	Query      url.Values
	Header     http.Header
	Cookies    []*http.Cookie
	JSON       any
	Form       url.Values
	NoRedirect bool
}

// Response is a fully read HTTP answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// IsJSON reports whether the answer declares a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "json")
}

// StatusError is a non-retryable, non-auth HTTP status.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.URL, e.Code, e.Body)
}

// HasStatus reports whether err is a StatusError with one of the codes.
func HasStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// Client wraps net/http with a per-source rate gate, retries and status classification.
type Client struct {
	cfg        Config
	http       *http.Client
	noRedirect *http.Client
	limiter    *rate.Limiter
	jar        http.CookieJar
	userAgent  atomic.Pointer[string]
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a client for one source. Every goroutine using it shares the rate gate.
func New(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig(cfg.Source)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	jar, _ := cookiejar.New(nil)
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		MaxIdleConns:    20,
		IdleConnTimeout: 90 * time.Second,
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout, Jar: jar, Transport: transport},
		limiter: rate.NewLimiter(limit, 1),
		jar:     jar,
		noRedirect: &http.Client{
			Timeout:   cfg.Timeout,
			Jar:       jar,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
		sleep:  sleepContext,
	}
	c.userAgent.Store(&cfg.UserAgent)
	return c
}

// Prime seeds the cookie jar for rawURL and optionally replaces the user agent.
// Challenge clearance cookies are bound to the agent that earned them.
func (c *Client) Prime(rawURL string, cookies []*http.Cookie, userAgent string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	if len(cookies) > 0 {
		c.jar.SetCookies(u, cookies)
	}
	if userAgent != "" {
		c.userAgent.Store(&userAgent)
	}
	return nil
}

// Source returns the source name the client was built for.
func (c *Client) Source() string {
	return c.cfg.Source
}

// Do executes req with rate limiting and bounded retries.
// 401/403 are never retried; 429, 5xx and transport errors back off exponentially.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate gate: %w", err)
		}

		resp, retryAfter, err := c.attempt(ctx, req, body, contentType)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.backoff(attempt, retryAfter)
		metrics.SourceRetriesTotal.WithLabelValues(c.cfg.Source).Inc()
		c.logger.Debug("retrying request", "source", c.cfg.Source, "url", req.URL, "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrTransient, req.URL, c.cfg.MaxAttempts, lastErr)
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re retryableError
	return errors.As(err, &re)
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte, contentType string) (*Response, time.Duration, error) {
	httpReq, err := c.build(ctx, req, body, contentType)
	if err != nil {
		return nil, 0, err
	}

	client := c.http
	if req.NoRedirect {
		client = c.noRedirect
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		metrics.ObserveRequest(c.cfg.Source, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, retryableError{fmt.Errorf("request %s: %w", req.URL, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	elapsed := time.Since(start)
	metrics.ObserveRequest(c.cfg.Source, resp.StatusCode, elapsed)
	if err != nil {
		return nil, 0, retryableError{fmt.Errorf("read %s: %w", req.URL, err)}
	}
	if len(data) > MaxResponseSize {
		return nil, 0, fmt.Errorf("response body too large from %s (max %d)", req.URL, MaxResponseSize)
	}

	c.logger.Debug("http request", "source", c.cfg.Source, "method", httpReq.Method, "url", httpReq.URL.String(), "status", resp.StatusCode, "duration", elapsed)

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data, URL: resp.Request.URL}
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return out, 0, nil
	case req.NoRedirect && code >= 300 && code < 400:
		return out, 0, nil
	case IsChallenge(code, resp.Header, data):
		return nil, 0, fmt.Errorf("%w: %s returned %d", domain.ErrChallenge, req.URL, code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, 0, fmt.Errorf("%w: %s returned %d", ErrSessionRejected, req.URL, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return nil, retryAfter(resp.Header), retryableError{&StatusError{Code: code, URL: req.URL, Body: snippet(data)}}
	default:
		return nil, 0, &StatusError{Code: code, URL: req.URL, Body: snippet(data)}
	}
}

func (c *Client) build(ctx context.Context, req Request, body []byte, contentType string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid url %s: %w", req.URL, err)
		}
		q := parsed.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		parsed.RawQuery = q.Encode()
		target = parsed.String()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", *c.userAgent.Load())
	httpReq.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	httpReq.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8")
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for _, cookie := range req.Cookies {
		httpReq.AddCookie(cookie)
	}
	return httpReq, nil
}

func encodeBody(req Request) ([]byte, string, error) {
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("marshal body: %w", err)
		}
		return data, "application/json", nil
	case req.Form != nil:
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, c.cfg.MaxBackoff)
	}
	delay := c.cfg.BaseBackoff << (attempt - 1)
	if delay <= 0 || delay > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return delay
}

// IsChallenge recognises anti-bot interstitials served with 403/503. A CDN
// Server header alone is not a challenge.
func IsChallenge(code int, header http.Header, body []byte) bool {
	if code != http.StatusForbidden && code != http.StatusServiceUnavailable {
		return false
	}
	if strings.EqualFold(header.Get("cf-mitigated"), "challenge") {
		return true
	}
	return bytes.Contains(body, []byte("Just a moment")) || bytes.Contains(body, []byte("cf-browser-verification"))
}

func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at)
	}
	return 0
}

func snippet(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
