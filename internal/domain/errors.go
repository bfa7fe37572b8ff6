package domain

import "errors"

var (
	// ErrStoreUnavailable is a transient failure talking to the backing store; callers may retry.
	ErrStoreUnavailable = errors.New("streak store unavailable")
	// ErrConcurrentUpdateConflict is returned by a store when a transactional update lost a race.
	ErrConcurrentUpdateConflict = errors.New("concurrent streak update conflict")
	// ErrInvalidActivityEvent marks an activity event without a user or completion instant.
	ErrInvalidActivityEvent = errors.New("invalid activity event")

	// ErrFreezeExhausted is returned when no streak freezes remain this month.
	ErrFreezeExhausted = errors.New("no streak freezes remaining")
	// ErrReviveWindowExpired is returned when the revive window has closed.
	ErrReviveWindowExpired = errors.New("streak revive window expired")
	// ErrReviveNotEligible is returned when there is no lost streak to revive.
	ErrReviveNotEligible = errors.New("no streak eligible for revive")
	// ErrReviveQuotaExhausted is returned when the user has used all revives.
	ErrReviveQuotaExhausted = errors.New("no streak revives remaining")
)

// IsRuleViolation reports whether err is a domain rule the user broke by acting,
// as opposed to an I/O failure.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrFreezeExhausted) ||
		errors.Is(err, ErrReviveWindowExpired) ||
		errors.Is(err, ErrReviveNotEligible) ||
		errors.Is(err, ErrReviveQuotaExhausted)
}
