package booking

import (
	"github.com/jwalitptl/booking-api/internal/model"
)

// Conflict identifies the first existing booking (by start time) that
// overlaps a requested interval.
type Conflict struct {
	With *model.ConfirmedBooking
}

// DetectConflict checks the requested interval against the provider's
// scheduled bookings, which the repository returns ordered by start
// time. Half-open semantics: a booking ending exactly when the request
// begins does not conflict. Returns nil when the slot is free.
func DetectConflict(requested model.TimeInterval, scheduled []*model.ConfirmedBooking) *Conflict {
	for _, b := range scheduled {
		if requested.Overlaps(b.Interval()) {
			return &Conflict{With: b}
		}
	}
	return nil
}
