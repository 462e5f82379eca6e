package parking

import "errors"

// Rejection reasons for the ingestion pipeline and analytics components.
// All of these are local and non-fatal: a rejected event never corrupts
// state for other zones.
var (
	// ErrUnknownZone means the event referenced a zone the registry does not know.
	ErrUnknownZone = errors.New("unknown zone")

	// ErrZoneInactive means the referenced zone exists but is deactivated.
	ErrZoneInactive = errors.New("zone is inactive")

	// ErrDuplicateEvent means the event's idempotency key was seen before.
	// Informational rather than fatal: the first application stands.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrLowConfidence means the detector confidence fell below the
	// configured minimum threshold.
	ErrLowConfidence = errors.New("event below confidence threshold")

	// ErrStaleOrFutureEvent means the event timestamp sits outside the
	// allowed clock skew.
	ErrStaleOrFutureEvent = errors.New("event timestamp outside allowed skew")

	// ErrInsufficientHistory means a forecast or anomaly check cannot run
	// yet. Cold start is expected; callers treat this as empty, not failure.
	ErrInsufficientHistory = errors.New("insufficient history")
)
