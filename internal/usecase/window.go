package usecase

import (
	"fmt"
	"time"

	"EditaisScanner/internal/domain"
)

// ResolveWindow canonicalizes the two window forms into whole days in loc.
// A relative window of N days spans from N days before today through today.
func ResolveWindow(req domain.RunRequest, now time.Time, loc *time.Location, defaultDays int) (domain.Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	hasRange := req.Start != nil || req.End != nil

	switch {
	case req.Days < 0:
		return domain.Window{}, fmt.Errorf("%w: days must be positive", domain.ErrInvalidRequest)
	case req.Days > 0 && hasRange:
		return domain.Window{}, fmt.Errorf("%w: give either days or start/end, not both", domain.ErrInvalidRequest)
	case hasRange:
		if req.Start == nil || req.End == nil {
			return domain.Window{}, fmt.Errorf("%w: start and end must be given together", domain.ErrInvalidRequest)
		}
		start, end := startOfDay(*req.Start, loc), startOfDay(*req.End, loc)
		if start.After(end) {
			return domain.Window{}, fmt.Errorf("%w: start %s is after end %s",
				domain.ErrInvalidRequest, start.Format(time.DateOnly), end.Format(time.DateOnly))
		}
		return domain.Window{Start: start, End: end}, nil
	}

	days := req.Days
	if days == 0 {
		days = defaultDays
	}
	if days <= 0 {
		days = 1
	}
	today := startOfDay(now, loc)
	return domain.Window{Start: today.AddDate(0, 0, -days), End: today}, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
