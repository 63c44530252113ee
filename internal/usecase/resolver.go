package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/ports"
)

// Resolver decides whether a notice is new and persists it when it is.
type Resolver struct {
	repo   ports.NoticeRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewResolver wires the notice repository.
func NewResolver(repo ports.NoticeRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{repo: repo, now: time.Now, logger: logger}
}

// Resolve checks the identity hash, then the natural key, then inserts.
// A uniqueness conflict on insert means another writer got there first.
func (r *Resolver) Resolve(ctx context.Context, n domain.Notice) (domain.Outcome, error) {
	exists, err := r.repo.ExistsByHash(ctx, n.IdentityHash)
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("lookup hash: %w", err)
	}
	if exists {
		return domain.OutcomeDuplicate, nil
	}

	if body, process, platform, ok := n.NaturalKey(); ok {
		exists, err = r.repo.ExistsByNaturalKey(ctx, body, process, platform)
		if err != nil {
			return domain.OutcomeError, fmt.Errorf("lookup natural key: %w", err)
		}
		if exists {
			r.logger.Debug("duplicate by natural key", "platform", platform, "process", process)
			return domain.OutcomeDuplicate, nil
		}
	}

	if _, err := r.repo.Insert(ctx, n, domain.NewTriageStub(n, r.now())); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.OutcomeDuplicate, nil
		}
		return domain.OutcomeError, fmt.Errorf("insert: %w", err)
	}
	return domain.OutcomeNew, nil
}
