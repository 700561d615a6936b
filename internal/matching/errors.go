package matching

import "errors"

var (
	// ErrInvalidInput marks malformed input to scoring or lifecycle
	// operations (missing required fields). Not retried.
	ErrInvalidInput = errors.New("matching: invalid input")

	ErrCasoNotFound   = errors.New("matching: caso not found")
	ErrLawyerNotFound = errors.New("matching: lawyer profile not found")
	ErrMatchNotFound  = errors.New("matching: match not found")

	// ErrMatchDuplicate is returned when a match already exists for the
	// (caso, lawyer) pair. CreateMatch also returns the existing row so
	// callers can treat the call as idempotent.
	ErrMatchDuplicate = errors.New("matching: match already exists for caso and lawyer")

	// ErrInvalidTransition is a business-rule rejection of a state change
	// the match state machine does not permit.
	ErrInvalidTransition = errors.New("matching: invalid match transition")

	// ErrQuotaRaceLost is an internal signal that the conditional lead
	// increment affected no rows (another distribution run won the slot).
	ErrQuotaRaceLost = errors.New("matching: lead quota race lost")
)
