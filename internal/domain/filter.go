package domain

import "github.com/google/uuid"

// ProspectionFilter narrows captured notices to the ones worth triaging.
type ProspectionFilter struct {
	ID                uuid.UUID
	Name              string
	Keywords          []string
	ExclusionKeywords []string
	Regions           []string
	Categories        []string
	MinValue          *float64
	MaxValue          *float64
	Active            bool
}

// Filter rejection reasons aggregated in the run report.
const (
	RejectKeyword   = "keyword"
	RejectExclusion = "exclusion"
	RejectRegion    = "region"
	RejectCategory  = "category"
	RejectValueMin  = "value_min"
	RejectValueMax  = "value_max"
)
