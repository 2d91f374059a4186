package gate

import "errors"

var (
	// ErrConsentRequired marks a check-in attempted without the visitor's
	// recorded data-processing consent. Never bypassable.
	ErrConsentRequired = errors.New("consent_required")

	// ErrOutsideArrivalWindow marks an arrival outside the expected window.
	// Soft: guards and admins may override.
	ErrOutsideArrivalWindow = errors.New("outside_arrival_window")

	// ErrBusy marks a per-visit lock that could not be acquired in time.
	// Retryable.
	ErrBusy = errors.New("busy")
)
