package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunRequest describes one acquisition run. Exactly one window form is set:
// Days, or Start together with End.
type RunRequest struct {
	Days       int           `json:"days,omitempty"`
	Start      *time.Time    `json:"start,omitempty"`
	End        *time.Time    `json:"end,omitempty"`
	Regions    []string      `json:"regions,omitempty"`
	Categories []string      `json:"categories,omitempty"`
	Sources    []string      `json:"sources,omitempty"`
	FilterIDs  []uuid.UUID   `json:"filter_ids,omitempty"`
	MaxPages   int           `json:"max_pages,omitempty"`
	TimeBudget time.Duration `json:"time_budget,omitempty"`
}

// Outcome is the resolver verdict for one notice.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFiltered  Outcome = "filtered"
	OutcomeError     Outcome = "error"
)
