package usecase

import (
	"strings"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/normalize"
)

// Prospector matches notices against prospection filters.
type Prospector struct{}

// Evaluate passes a notice that satisfies at least one filter. With no filters
// everything passes. On rejection the reason of the first filter is reported.
func (Prospector) Evaluate(n domain.Notice, filters []domain.ProspectionFilter) (bool, string) {
	if len(filters) == 0 {
		return true, ""
	}

	text := normalize.Fold(n.ObjectSummary + " " + n.ObjectFullText)
	var first string
	for _, f := range filters {
		reason := match(n, text, f)
		if reason == "" {
			return true, ""
		}
		if first == "" {
			first = reason
		}
	}
	return false, first
}

func match(n domain.Notice, text string, f domain.ProspectionFilter) string {
	for _, ex := range f.ExclusionKeywords {
		if containsWord(text, ex) {
			return domain.RejectExclusion
		}
	}

	if len(f.Keywords) > 0 {
		hit := false
		for _, kw := range f.Keywords {
			if containsWord(text, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return domain.RejectKeyword
		}
	}

	if len(f.Regions) > 0 && n.RegionCode != "" {
		in := false
		for _, r := range f.Regions {
			if strings.EqualFold(strings.TrimSpace(r), n.RegionCode) {
				in = true
				break
			}
		}
		if !in {
			return domain.RejectRegion
		}
	}

	if len(f.Categories) > 0 {
		in := false
		for _, c := range f.Categories {
			if normalize.ContainsFolded(n.CategoryLabel, c) {
				in = true
				break
			}
		}
		if !in {
			return domain.RejectCategory
		}
	}

	if v := n.EstimatedValue; v != nil {
		if f.MinValue != nil && *v < *f.MinValue {
			return domain.RejectValueMin
		}
		if f.MaxValue != nil && *v > *f.MaxValue {
			return domain.RejectValueMax
		}
	}
	return ""
}

// containsWord reports whether the folded keyword occurs in already folded text.
func containsWord(folded, keyword string) bool {
	kw := normalize.Fold(keyword)
	return kw != "" && strings.Contains(folded, kw)
}
