package auth

import (
	"context"
	"errors"
	"fmt"

	"EditaisScanner/internal/domain"
)

// Chain tries strategies in order; the first success wins.
type Chain []Authenticator

// Authenticate returns the first successful session or the joined failures.
func (c Chain) Authenticate(ctx context.Context) (*Session, error) {
	var errs []error
	for _, strategy := range c {
		session, err := strategy.Authenticate(ctx)
		if err == nil {
			return session, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no strategies configured", domain.ErrAuthentication)
	}
	return nil, fmt.Errorf("%w: all strategies failed: %w", domain.ErrAuthentication, errors.Join(errs...))
}
