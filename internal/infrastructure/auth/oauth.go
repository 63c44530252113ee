package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/httpclient"
)

const defaultMaxHops = 5

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (t tokenResponse) session(now time.Time) (*Session, error) {
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%w: token endpoint returned no access_token", domain.ErrAuthentication)
	}
	return Bearer(t.AccessToken, time.Duration(t.ExpiresIn)*time.Second, now), nil
}

// PasswordGrant performs an OAuth2 resource-owner password grant.
type PasswordGrant struct {
	Client   *httpclient.Client
	TokenURL string
	ClientID string
	Username string
	Password string
	Scope    string
}

// Authenticate posts the credentials to the token endpoint.
func (p PasswordGrant) Authenticate(ctx context.Context) (*Session, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {p.ClientID},
		"username":   {p.Username},
		"password":   {p.Password},
	}
	if p.Scope != "" {
		form.Set("scope", p.Scope)
	}
	resp, err := p.Client.Do(ctx, httpclient.Request{Method: http.MethodPost, URL: p.TokenURL, Form: form})
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	var token tokenResponse
	if err := resp.DecodeJSON(&token); err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return token.session(time.Now())
}

// PKCE performs an authorization-code flow with an S256 code challenge by
// submitting the provider's HTML login form.
type PKCE struct {
	Client      *httpclient.Client
	AuthURL     string
	TokenURL    string
	ClientID    string
	RedirectURI string
	Username    string
	Password    string
	Scope       string
	MaxHops     int
}

// Authenticate runs the full browser-like flow and exchanges the code.
func (p PKCE) Authenticate(ctx context.Context) (*Session, error) {
	verifier, challenge, err := NewPKCEPair()
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"client_id":             {p.ClientID},
		"redirect_uri":          {p.RedirectURI},
		"response_type":         {"code"},
		"state":                 {randomToken(16)},
		"nonce":                 {randomToken(16)},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	if p.Scope != "" {
		query.Set("scope", p.Scope)
	}

	page, err := p.Client.Do(ctx, httpclient.Request{URL: p.AuthURL, Query: query})
	if err != nil {
		return nil, fmt.Errorf("pkce login page: %w", err)
	}

	action, err := LoginFormAction(page.Body, page.URL)
	if err != nil {
		return nil, err
	}

	login, err := p.Client.Do(ctx, httpclient.Request{
		Method:     http.MethodPost,
		URL:        action,
		Form:       url.Values{"username": {p.Username}, "password": {p.Password}},
		NoRedirect: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pkce credentials: %w", err)
	}

	location := login.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: login form answered %d without redirect", domain.ErrAuthentication, login.StatusCode)
	}

	code, err := p.followToCode(ctx, login.URL, location)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    p.TokenURL,
		Form: url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {p.ClientID},
			"code":          {code},
			"redirect_uri":  {p.RedirectURI},
			"code_verifier": {verifier},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pkce code exchange: %w", err)
	}
	var token tokenResponse
	if err := resp.DecodeJSON(&token); err != nil {
		return nil, fmt.Errorf("pkce code exchange: %w", err)
	}
	return token.session(time.Now())
}

func (p PKCE) followToCode(ctx context.Context, base *url.URL, location string) (string, error) {
	hops := p.MaxHops
	if hops <= 0 {
		hops = defaultMaxHops
	}

	current, err := resolve(base, location)
	if err != nil {
		return "", err
	}
	for i := 0; i < hops && !strings.HasPrefix(current.String(), p.RedirectURI); i++ {
		resp, err := p.Client.Do(ctx, httpclient.Request{URL: current.String(), NoRedirect: true})
		if err != nil {
			return "", fmt.Errorf("pkce redirect hop: %w", err)
		}
		next := resp.Header.Get("Location")
		if next == "" {
			break
		}
		if current, err = resolve(current, next); err != nil {
			return "", err
		}
	}

	code := current.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: no authorization code in redirect", domain.ErrAuthentication)
	}
	return code, nil
}

// LoginFormAction returns the absolute action URL of the login form in page.
func LoginFormAction(page []byte, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}

	var action string
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if v, ok := form.Attr("action"); ok && v != "" {
			action = v
			return form.Find("input[type=password]").Length() == 0
		}
		return true
	})
	if action == "" {
		return "", fmt.Errorf("%w: login form action not found", domain.ErrAuthentication)
	}

	u, err := resolve(base, action)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func resolve(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect %q: %w", ref, err)
	}
	if base == nil {
		return u, nil
	}
	return base.ResolveReference(u), nil
}

// NewPKCEPair returns a 32-byte verifier and its S256 challenge.
func NewPKCEPair() (verifier, challenge string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	return verifier, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func randomToken(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
