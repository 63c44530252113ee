package auth

import (
	"context"
	"encoding/base64"
	"fmt"

	"EditaisScanner/internal/domain"
)

// BasicAuth is a static client-id/secret credential that never expires.
type BasicAuth struct {
	ClientID     string
	ClientSecret string
}

// Authenticate returns the Basic Authorization header.
func (b BasicAuth) Authenticate(context.Context) (*Session, error) {
	if b.ClientID == "" || b.ClientSecret == "" {
		return nil, fmt.Errorf("%w: basic credentials not configured", domain.ErrAuthentication)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(b.ClientID + ":" + b.ClientSecret))
	return &Session{Headers: map[string]string{"Authorization": "Basic " + encoded}}, nil
}
