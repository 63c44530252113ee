package parser

import (
	"fmt"
	"log/slog"

	"EditaisScanner/internal/config"
	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/httpclient"
	"EditaisScanner/internal/scanner"
)

var (
	// LicitarLoginEndpoints are tried in order against the manager API.
	LicitarLoginEndpoints = []string{"/auth/login", "/auth", "/user/login", "/authentication/login", "/login"}

	// LicitarLoginPayloads are the credential shapes the portal has accepted.
	LicitarLoginPayloads = []map[string]string{
		{"cpf": "{username}", "password": "{password}"},
		{"login": "{username}", "password": "{password}"},
		{"username": "{username}", "password": "{password}"},
		{"email": "{username}", "password": "{password}"},
		{"document": "{username}", "password": "{password}"},
		{"cpf": "{username}", "senha": "{password}"},
	}
)

// Deps are the shared collaborators a scanner may need.
type Deps struct {
	Cache  auth.Cache
	Solver auth.Solver
	Logger *slog.Logger
}

// BuildRegistry registers one scanner per enabled source configuration.
func BuildRegistry(sources []config.SourceConfig, deps Deps) (*scanner.Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reg := scanner.NewRegistry()
	for _, src := range sources {
		if src.Disabled {
			logger.Debug("source disabled", "source", src.Name)
			continue
		}
		s, err := buildScanner(src, deps, logger)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		reg.Register(s)
		logger.Debug("source registered", "source", src.Name, "scanner", src.Scanner)
	}
	return reg, nil
}

func buildScanner(src config.SourceConfig, deps Deps, logger *slog.Logger) (scanner.Scanner, error) {
	client := newClient(src, logger)

	switch src.Scanner {
	case "pncp":
		return NewPNCPScanner(PNCPConfig{
			BaseURL:    src.BaseURL,
			PageSize:   src.PageSize,
			Categories: src.Categories,
			Regions:    src.Regions,
		}, client, logger), nil

	case "comprasgov", "comprasgov-legado":
		cfg := ComprasGovConfig{
			BaseURL:    src.BaseURL,
			PageSize:   src.PageSize,
			Categories: src.Categories,
			Regions:    src.Regions,
		}
		if src.Scanner == "comprasgov-legado" {
			return NewComprasGovLegacyScanner(cfg, client, logger), nil
		}
		return NewComprasGovScanner(cfg, client, logger), nil

	case "bbmnet":
		a := src.Auth
		keycloak := auth.Chain{
			auth.PasswordGrant{
				Client: client, TokenURL: a.TokenURL, ClientID: a.ClientID,
				Username: a.Username, Password: a.Password, Scope: a.Scope,
			},
			auth.PKCE{
				Client: client, AuthURL: a.AuthURL, TokenURL: a.TokenURL, ClientID: a.ClientID,
				RedirectURI: a.RedirectURI, Username: a.Username, Password: a.Password, Scope: a.Scope,
			},
		}
		session := auth.NewManager(src.Name, keycloak, deps.Cache, logger)
		return NewBBMNETScanner(BBMNETConfig{
			ListingURL: src.BaseURL,
			PageSize:   src.PageSize,
			Regions:    src.Regions,
			Modalities: src.Categories,
		}, client, session, logger), nil

	case "licitardigital":
		a := src.Auth
		base := src.BaseURL
		if base == "" {
			base = licitarManagerURL
		}
		endpoints := a.LoginEndpoints
		if len(endpoints) == 0 {
			endpoints = LicitarLoginEndpoints
		}
		urls := make([]string, 0, len(endpoints))
		for _, e := range endpoints {
			urls = append(urls, base+e)
		}
		payloads := a.LoginPayloads
		if len(payloads) == 0 {
			payloads = LicitarLoginPayloads
		}
		login := auth.CandidateLogin{
			Client: client, Endpoints: urls, Payloads: payloads,
			Username: a.Username, Password: a.Password, Logger: logger,
		}
		challengeURL := a.ChallengeURL
		if challengeURL == "" {
			challengeURL = licitarAppURL
		}
		primed := auth.ChallengePriming{
			Solver: deps.Solver, Client: client, URL: challengeURL, Next: login, Logger: logger,
		}
		session := auth.NewManager(src.Name, primed, deps.Cache, logger)
		return NewLicitarPortalScanner(LicitarPortalConfig{BaseURL: src.BaseURL}, client, session, logger), nil

	case "licitardigital-partner":
		basic := auth.BasicAuth{ClientID: src.Auth.ClientID, ClientSecret: src.Auth.ClientSecret}
		session := auth.NewManager(src.Name, basic, nil, logger)
		return NewPartnerScanner(PartnerConfig{
			BaseURL:      src.BaseURL,
			PageSize:     src.PageSize,
			Regions:      src.Regions,
			ProcessTypes: src.Categories,
		}, client, session, logger), nil

	case "bll", "bnc", "licitanet":
		var cfg ExchangeConfig
		switch src.Scanner {
		case "bll":
			cfg = BLLConfig()
		case "bnc":
			cfg = BNCConfig()
		default:
			cfg = LicitanetConfig()
		}
		cfg.Name = src.Name
		if src.BaseURL != "" {
			cfg.BaseURL = src.BaseURL
		}
		if src.PageSize > 0 {
			cfg.PageSize = src.PageSize
		}
		if src.MaxPages > 0 {
			cfg.MaxPages = src.MaxPages
		}
		return NewExchangeScanner(cfg, client, logger), nil
	}

	return nil, fmt.Errorf("unknown scanner %q", src.Scanner)
}

func newClient(src config.SourceConfig, logger *slog.Logger) *httpclient.Client {
	cfg := httpclient.DefaultConfig(src.Name)
	if src.MinInterval > 0 {
		cfg.MinInterval = src.MinInterval
	}
	if src.MaxAttempts > 0 {
		cfg.MaxAttempts = src.MaxAttempts
	}
	if src.Timeout > 0 {
		cfg.Timeout = src.Timeout
	}
	return httpclient.New(cfg, logger.With("component", "httpclient", "source", src.Name))
}
