package validation

import (
	"time"
)

// RefreshMode selects how a refresh threshold is interpreted. The two
// readings exist in the wild, so the direction is a knob rather than a
// hardcoded choice.
type RefreshMode string

const (
	// RefreshWhenRemainingBelow refreshes when less than threshold of the
	// token's lifetime remains. Default.
	RefreshWhenRemainingBelow RefreshMode = "remaining_below"

	// RefreshWhenElapsedAbove refreshes when more than threshold of the
	// token's lifetime has elapsed.
	RefreshWhenElapsedAbove RefreshMode = "elapsed_above"
)

// ShouldRefresh decides whether a token issued at issuedAt and expiring at
// expiresAt needs refreshing at instant now. An expired or zero-lifetime
// token always refreshes. threshold is a fraction in (0,1].
func ShouldRefresh(issuedAt, expiresAt, now time.Time, threshold float64, mode RefreshMode) bool {
	if !now.Before(expiresAt) {
		return true
	}
	lifetime := expiresAt.Sub(issuedAt)
	if lifetime <= 0 {
		return true
	}

	switch mode {
	case RefreshWhenElapsedAbove:
		elapsed := now.Sub(issuedAt)
		return float64(elapsed) > threshold*float64(lifetime)
	default:
		remaining := expiresAt.Sub(now)
		return float64(remaining) < threshold*float64(lifetime)
	}
}
