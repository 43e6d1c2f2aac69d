package models

import "errors"

// Validation and redemption failures. Each maps to a distinct user-facing
// message so callers can tell a customer whether to request a new code, wait,
// or contact support.
var (
	ErrCodeNotFound  = errors.New("invitation code not found")
	ErrCodeInactive  = errors.New("invitation code has been deactivated")
	ErrCodeExpired   = errors.New("invitation code has expired")
	ErrCodeExhausted = errors.New("invitation code has no uses remaining")

	// ErrDuplicateRedemption is returned when the same account tries to
	// redeem a code twice. Rejected outright, never silently ignored.
	ErrDuplicateRedemption = errors.New("invitation code already redeemed by this account")

	// ErrDuplicateCode is returned when a generated or requested code string
	// collides with an existing one. Recoverable: regenerate and retry.
	ErrDuplicateCode = errors.New("invitation code string already exists")

	// ErrCycleDetected is a data-integrity fault in the referral graph. It is
	// surfaced to operators, never silently truncated.
	ErrCycleDetected = errors.New("referral cycle detected")

	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("an account with this email already exists")
)
