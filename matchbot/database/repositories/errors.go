package repositories

import "errors"

var (
	// ErrNotFound covers missing listings and trades, and closed trades on
	// paths that require an open one.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized means the actor is not a participant of the trade.
	ErrUnauthorized = errors.New("actor is not a trade participant")

	// ErrTradeClosed means the trade was already completed or cancelled.
	ErrTradeClosed = errors.New("trade already closed")

	// ErrChannelAlreadySet guards the one-shot conversation space reference.
	ErrChannelAlreadySet = errors.New("trade channel already set")

	// ErrCandidateUnavailable means a concurrent match claimed the candidate
	// first. The caller continues with the next candidate.
	ErrCandidateUnavailable = errors.New("candidate listing no longer active")

	// ErrListingUnavailable means the listing being matched was itself
	// claimed concurrently. The caller stops: someone already matched it.
	ErrListingUnavailable = errors.New("listing no longer active")
)
