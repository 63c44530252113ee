package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EditaisScanner/internal/domain"
)

type racingRepository struct {
	*memoryRepository
}

func (r racingRepository) Insert(context.Context, domain.Notice, domain.TriageStub) (uuid.UUID, error) {
	return uuid.Nil, domain.ErrDuplicate
}

func TestResolverHashThenNaturalKey(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepository()
	r := NewResolver(repo, nil)
	ctx := context.Background()

	original := domain.Notice{
		IdentityHash:    "h1",
		SourcePlatform:  "bbmnet",
		IssuingBodyName: "Prefeitura Municipal de Exemplo",
		ProcessNumber:   "PE-15",
	}
	outcome, err := r.Resolve(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNew, outcome)

	outcome, err = r.Resolve(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)

	// a drifted native id still matches on (body, process, platform)
	drifted := original
	drifted.IdentityHash = "h2"
	outcome, err = r.Resolve(ctx, drifted)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)

	// without a process number the natural key is not consulted
	partial := drifted
	partial.ProcessNumber = ""
	outcome, err = r.Resolve(ctx, partial)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNew, outcome)
	assert.Equal(t, 2, repo.count())
}

func TestResolverStubPriority(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepository()
	r := NewResolver(repo, nil)
	r.now = func() time.Time { return fixedNow }

	closes := fixedNow.Add(72 * time.Hour)
	n := domain.Notice{ID: uuid.New(), IdentityHash: "urgent", ProposalClosesAt: &closes}
	_, err := r.Resolve(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, repo.stubs[n.ID].Priority)

	later := fixedNow.AddDate(0, 1, 0)
	m := domain.Notice{ID: uuid.New(), IdentityHash: "later", ProposalClosesAt: &later}
	_, err = r.Resolve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, repo.stubs[m.ID].Priority)
}

func TestResolverInsertConflictIsDuplicate(t *testing.T) {
	t.Parallel()

	r := NewResolver(racingRepository{newMemoryRepository()}, nil)
	outcome, err := r.Resolve(context.Background(), domain.Notice{IdentityHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, outcome)
}

func TestResolverPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepository()
	repo.failWith = errors.Join(domain.ErrStoreUnavailable, errors.New("connection refused"))
	outcome, err := NewResolver(repo, nil).Resolve(context.Background(), domain.Notice{IdentityHash: "h"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.OutcomeError, outcome)
}
