package domain

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStatus enumerates notice workflow milestones.
type LifecycleStatus string

const (
	StatusCaptured     LifecycleStatus = "captured"
	StatusUnderReview  LifecycleStatus = "under_review"
	StatusApproved     LifecycleStatus = "approved"
	StatusRejected     LifecycleStatus = "rejected"
	StatusInQuoting    LifecycleStatus = "in_quoting"
	StatusBidSubmitted LifecycleStatus = "bid_submitted"
	StatusWon          LifecycleStatus = "won"
	StatusLost         LifecycleStatus = "lost"
	StatusArchived     LifecycleStatus = "archived"
)

// Notice is the canonical procurement notice produced by every source.
type Notice struct {
	ID             uuid.UUID
	IdentityHash   string
	SourcePlatform string
	ExternalID     string

	ProcessNumber string
	NoticeNumber  string

	IssuingBodyName  string
	IssuingBodyTaxID string
	UnitName         string
	RegionCode       string
	Municipality     string

	ObjectSummary  string
	ObjectFullText string

	CategoryLabel    string
	JudgmentCriteria string
	IsPriceRegistry  bool

	PublishedAt      *time.Time
	ProposalOpensAt  *time.Time
	ProposalClosesAt *time.Time
	DisputeStartsAt  *time.Time

	EstimatedValue *float64

	OriginURL       string
	SourceSystemURL string
	SourceStatus    string

	LifecycleStatus LifecycleStatus
	CapturedAt      time.Time
}

// NaturalKey reports the fallback dedup tuple; ok is false when it is unusable.
func (n Notice) NaturalKey() (body, process, platform string, ok bool) {
	if n.IssuingBodyName == "" || n.ProcessNumber == "" {
		return "", "", "", false
	}
	return n.IssuingBodyName, n.ProcessNumber, n.SourcePlatform, true
}

// TriageDecision is the downstream review verdict.
type TriageDecision string

const TriagePending TriageDecision = "pending"

// TriagePriority ranks notices for the review queue.
type TriagePriority string

const (
	PriorityHigh   TriagePriority = "alta"
	PriorityMedium TriagePriority = "media"
)

const (
	highValueThreshold = 500000
	urgentWindow       = 5 * 24 * time.Hour
)

// TriageStub is the pending review record created alongside every new notice.
type TriageStub struct {
	ID       uuid.UUID
	NoticeID uuid.UUID
	Decision TriageDecision
	Priority TriagePriority
}

// NewTriageStub builds the pending stub for a notice, ranking it against now.
func NewTriageStub(n Notice, now time.Time) TriageStub {
	return TriageStub{
		ID:       uuid.New(),
		NoticeID: n.ID,
		Decision: TriagePending,
		Priority: PriorityFor(n, now),
	}
}

// PriorityFor marks high-value or soon-closing notices as urgent.
func PriorityFor(n Notice, now time.Time) TriagePriority {
	if n.EstimatedValue != nil && *n.EstimatedValue > highValueThreshold {
		return PriorityHigh
	}
	if n.ProposalClosesAt != nil {
		left := n.ProposalClosesAt.Sub(now)
		if left >= 0 && left <= urgentWindow {
			return PriorityHigh
		}
	}
	return PriorityMedium
}

// ActivityEntry is an audit row written with each capture.
type ActivityEntry struct {
	Action   string
	Entity   string
	EntityID uuid.UUID
	Details  map[string]any
}

const ActionAutomaticCapture = "captacao_automatica"
