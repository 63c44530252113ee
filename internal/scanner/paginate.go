package scanner

import (
	"context"
	"fmt"
	"time"
)

// PageFunc fetches one page at offset.
type PageFunc func(ctx context.Context, offset, limit int) (RawPage, error)

// EarlyStop drops closed records and fires after Threshold consecutive ones.
// Results are ordered newest-first, so a run of closed items ends the open window.
type EarlyStop struct {
	Threshold int
	IsOpen    func(RawRecord) bool
}

// Paginate walks pages until exhaustion, MaxPages, the deadline or an early stop.
// A failing page ends the walk but keeps everything collected before it.
func Paginate(ctx context.Context, limit int, opts FetchOptions, fetch PageFunc, stop *EarlyStop) FetchResult {
	var (
		result FetchResult
		offset int
		closed int
	)

	for {
		if opts.MaxPages > 0 && result.Pages >= opts.MaxPages {
			return result
		}
		if !opts.Deadline.IsZero() && !time.Now().Before(opts.Deadline) {
			result.Truncated = true
			return result
		}
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		page, err := fetch(ctx, offset, limit)
		if err != nil {
			result.Err = fmt.Errorf("page at offset %d: %w", offset, err)
			return result
		}
		result.Pages++

		for _, rec := range page.Records {
			if stop == nil || stop.IsOpen == nil {
				result.Records = append(result.Records, rec)
				continue
			}
			if stop.IsOpen(rec) {
				closed = 0
				result.Records = append(result.Records, rec)
				continue
			}
			closed++
		}

		if stop != nil && stop.Threshold > 0 && closed >= stop.Threshold {
			result.Stopped = true
			return result
		}
		if !page.HasMore || (len(page.Records) == 0 && page.NextOffset <= offset) {
			return result
		}

		if page.NextOffset > offset {
			offset = page.NextOffset
		} else {
			offset += len(page.Records)
		}
	}
}
