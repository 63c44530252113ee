package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"EditaisScanner/internal/domain"
)

func TestProspectorEvaluate(t *testing.T) {
	t.Parallel()

	value := func(v float64) *float64 { return &v }
	notice := domain.Notice{
		ObjectSummary:  "Aquisição de medicamentos e insumos hospitalares",
		RegionCode:     "RJ",
		CategoryLabel:  "Pregão - Eletrônico",
		EstimatedValue: value(80000),
	}

	testCases := []struct {
		name    string
		notice  func(domain.Notice) domain.Notice
		filters []domain.ProspectionFilter
		pass    bool
		reason  string
	}{
		{name: "no filters", pass: true},
		{name: "keyword folded", filters: []domain.ProspectionFilter{{Keywords: []string{"MEDICAMENTO"}}}, pass: true},
		{name: "keyword miss", filters: []domain.ProspectionFilter{{Keywords: []string{"pavimentação"}}}, reason: domain.RejectKeyword},
		{
			name:    "exclusion vetoes",
			filters: []domain.ProspectionFilter{{Keywords: []string{"medicamentos"}, ExclusionKeywords: []string{"hospitalares"}}},
			reason:  domain.RejectExclusion,
		},
		{name: "region miss", filters: []domain.ProspectionFilter{{Regions: []string{"SP", "MG"}}}, reason: domain.RejectRegion},
		{
			name:    "region ignored without uf",
			notice:  func(n domain.Notice) domain.Notice { n.RegionCode = ""; return n },
			filters: []domain.ProspectionFilter{{Regions: []string{"SP"}}},
			pass:    true,
		},
		{name: "category substring", filters: []domain.ProspectionFilter{{Categories: []string{"pregao"}}}, pass: true},
		{name: "category miss", filters: []domain.ProspectionFilter{{Categories: []string{"Concorrência"}}}, reason: domain.RejectCategory},
		{name: "below min", filters: []domain.ProspectionFilter{{MinValue: value(100000)}}, reason: domain.RejectValueMin},
		{name: "above max", filters: []domain.ProspectionFilter{{MaxValue: value(50000)}}, reason: domain.RejectValueMax},
		{
			name:    "bounds ignored without value",
			notice:  func(n domain.Notice) domain.Notice { n.EstimatedValue = nil; return n },
			filters: []domain.ProspectionFilter{{MinValue: value(100000), MaxValue: value(200000)}},
			pass:    true,
		},
		{
			name: "any filter passes",
			filters: []domain.ProspectionFilter{
				{Keywords: []string{"obras"}},
				{Regions: []string{"RJ"}, Keywords: []string{"insumos"}},
			},
			pass: true,
		},
		{
			name: "first reason reported",
			filters: []domain.ProspectionFilter{
				{Regions: []string{"SP"}},
				{Keywords: []string{"obras"}},
			},
			reason: domain.RejectRegion,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			n := notice
			if tc.notice != nil {
				n = tc.notice(n)
			}
			ok, reason := Prospector{}.Evaluate(n, tc.filters)
			assert.Equal(t, tc.pass, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}
