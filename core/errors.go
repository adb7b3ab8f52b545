package core

import "errors"

// Error kinds surfaced by the engine. Handlers classify with errors.Is and
// map them to transport status codes.
var (
	// ErrUnknownEventType rejects an activity type absent from the rule table.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrUnauthenticated means the caller identity could not be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRateLimited means the caller exceeded the submission throttle.
	ErrRateLimited = errors.New("rate limited")

	// ErrConflict means an optimistic write lost its race. The engine retries
	// a bounded number of times before surfacing it.
	ErrConflict = errors.New("store conflict")

	// ErrUnavailable means the store could not be reached. Safe to retry with
	// the same idempotency key.
	ErrUnavailable = errors.New("store unavailable")
)

var (
	errEmptyBadge   = errors.New("empty badge code")
	errInvalidBadge = errors.New("invalid badge code")
)
