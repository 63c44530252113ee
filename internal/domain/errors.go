package domain

import "errors"

var (
	// ErrAuthentication marks invalid credentials or exhausted auth strategies.
	ErrAuthentication = errors.New("authentication failed")
	// ErrTransient marks timeouts, 429 and 5xx answers that survived all retries.
	ErrTransient = errors.New("transient fetch failure")
	// ErrChallenge marks an anti-bot challenge page served instead of data.
	ErrChallenge = errors.New("challenge required")
	// ErrMalformedRecord marks raw records without usable identity data.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrDuplicate is returned by the store when a uniqueness constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate notice")
	// ErrStoreUnavailable marks connectivity loss with the persistence store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrBudgetExceeded is reported when a run hits its time budget.
	ErrBudgetExceeded = errors.New("time budget exceeded")
	// ErrInvalidRequest marks a run request that cannot be canonicalized.
	ErrInvalidRequest = errors.New("invalid run request")
)

// FailureKind classifies per-combination failures in a run report.
type FailureKind string

const (
	FailureAuthentication FailureKind = "authentication"
	FailureTransient      FailureKind = "transient"
	FailureMalformed      FailureKind = "malformed"
	FailureBudget         FailureKind = "budget"
	FailureOther          FailureKind = "other"
)

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrChallenge):
		return FailureAuthentication
	case errors.Is(err, ErrTransient):
		return FailureTransient
	case errors.Is(err, ErrMalformedRecord):
		return FailureMalformed
	case errors.Is(err, ErrBudgetExceeded):
		return FailureBudget
	default:
		return FailureOther
	}
}
