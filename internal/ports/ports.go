package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"EditaisScanner/internal/domain"
)

// NoticeRepository is the persistence gateway used by the resolver.
type NoticeRepository interface {
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	ExistsByNaturalKey(ctx context.Context, body, process, platform string) (bool, error)
	// Insert writes the notice, its triage stub and the capture activity atomically.
	// A uniqueness conflict is reported as domain.ErrDuplicate.
	Insert(ctx context.Context, notice domain.Notice, stub domain.TriageStub) (uuid.UUID, error)
}

// FilterRepository loads prospection filters.
type FilterRepository interface {
	ActiveFilters(ctx context.Context) ([]domain.ProspectionFilter, error)
	FiltersByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ProspectionFilter, error)
}

// EventPublisher announces newly captured notices downstream.
type EventPublisher interface {
	PublishCaptured(ctx context.Context, notice domain.Notice) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Trigger starts one acquisition run.
type Trigger interface {
	Run(ctx context.Context, req domain.RunRequest) (domain.RunReport, error)
}

// Job is one scheduled entry.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context, at time.Time)
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, jobs []Job) error
	Stop(ctx context.Context) error
}
