package model

import "errors"

// Error taxonomy: kinds, not names. Wrap one of these two sentinels with
// fmt.Errorf("...: %w", ...) so callers can errors.Is against the kind
// without caring about the specific message.
var (
	// ErrInvalidConfiguration covers malformed identifiers, bad cron
	// expressions, oversize generated taskIds, and JobFilter rejection.
	// Surfaced to the caller; no state mutation.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSchedule covers caller-visible logical errors: duplicate job,
	// starting a non-existent or non-cron job, update-in-progress, token
	// mismatch, finishUpdate with no session, restartShards against a
	// missing instance. Surfaced; no state mutation.
	ErrSchedule = errors.New("schedule error")
)
