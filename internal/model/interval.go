package model

import (
	"errors"
	"time"
)

// ErrInvalidInterval is returned when an interval is constructed with
// start >= end. Always a caller bug, never retried.
var ErrInvalidInterval = errors.New("interval start must be before end")

// TimeInterval is a half-open occupancy [Start, End) of a provider's
// calendar. Immutable once created.
type TimeInterval struct {
	Start      time.Time `json:"start" db:"start_time"`
	End        time.Time `json:"end" db:"end_time"`
	ResourceID string    `json:"resource_id,omitempty" db:"-"`
}

// NewTimeInterval validates the start < end invariant.
func NewTimeInterval(start, end time.Time, resourceID string) (TimeInterval, error) {
	if !start.Before(end) {
		return TimeInterval{}, ErrInvalidInterval
	}
	return TimeInterval{Start: start, End: end, ResourceID: resourceID}, nil
}

// Overlaps reports whether two half-open intervals intersect. A slot
// ending exactly when another begins does not conflict.
func (i TimeInterval) Overlaps(other TimeInterval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether point falls inside the half-open interval.
func (i TimeInterval) Contains(point time.Time) bool {
	return !point.Before(i.Start) && point.Before(i.End)
}

// Duration returns the interval length.
func (i TimeInterval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
