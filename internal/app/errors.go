// internal/app/errors.go
package app

import "errors"

// Failure kinds surfaced by the recommendation services.
var (
	// ErrNoVerifiedHandle means the scope has no member with a verified handle.
	// The batch row stays persisted with zero problems.
	ErrNoVerifiedHandle = errors.New("scope has no member with a verified handle")
	// ErrRecommendationBlockedTime means a manual trigger hit the guard band around the cycle start.
	ErrRecommendationBlockedTime = errors.New("manual recommendations are blocked around the cycle start")
	// ErrAlreadyExistsToday means the scope already has a batch for the current cycle.
	ErrAlreadyExistsToday = errors.New("a recommendation batch already exists for the current cycle")
	// ErrCatalogUnavailable means the external recommender call failed.
	ErrCatalogUnavailable = errors.New("problem catalog is unavailable")
	// ErrDeliveryFailed means the mail transport rejected one recipient's email.
	ErrDeliveryFailed = errors.New("delivery failed")
)
