package domain

import (
	"time"

	"github.com/google/uuid"
)

// Window is a canonical inclusive day range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Counts aggregates resolver outcomes for one slice of a run.
type Counts struct {
	Found     int `json:"found"`
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Filtered  int `json:"filtered"`
	Errors    int `json:"errors"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Found += other.Found
	c.New += other.New
	c.Duplicate += other.Duplicate
	c.Filtered += other.Filtered
	c.Errors += other.Errors
}

// Failure describes one contained source/region/category failure.
type Failure struct {
	Source   string      `json:"source"`
	Region   string      `json:"region,omitempty"`
	Category string      `json:"category,omitempty"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
}

// RunReport is returned to the trigger layer after every acquisition run.
type RunReport struct {
	RunID            uuid.UUID          `json:"run_id"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       time.Time          `json:"finished_at"`
	Window           Window             `json:"window"`
	PerSource        map[string]*Counts `json:"per_source"`
	PerRegion        map[string]*Counts `json:"per_region"`
	Total            Counts             `json:"total"`
	Truncated        bool               `json:"truncated"`
	FilterRejections map[string]int     `json:"filter_rejections,omitempty"`
	Failures         []Failure          `json:"failures,omitempty"`
}

// NewRunReport prepares an empty report for the given window.
func NewRunReport(window Window, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:            uuid.New(),
		StartedAt:        startedAt,
		Window:           window,
		PerSource:        map[string]*Counts{},
		PerRegion:        map[string]*Counts{},
		FilterRejections: map[string]int{},
	}
}

// Record merges counts for a source/region pair into the report.
func (r *RunReport) Record(source, region string, c Counts) {
	if _, ok := r.PerSource[source]; !ok {
		r.PerSource[source] = &Counts{}
	}
	r.PerSource[source].Add(c)

	if region == "" {
		region = "*"
	}
	if _, ok := r.PerRegion[region]; !ok {
		r.PerRegion[region] = &Counts{}
	}
	r.PerRegion[region].Add(c)

	r.Total.Add(c)
}

// Reject counts a prospection-filter rejection reason.
func (r *RunReport) Reject(reason string) {
	if reason == "" {
		return
	}
	r.FilterRejections[reason]++
}

// Fail appends a contained failure.
func (r *RunReport) Fail(f Failure) {
	r.Failures = append(r.Failures, f)
}
