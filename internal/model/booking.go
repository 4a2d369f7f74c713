package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "scheduled"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

type SessionType string

const (
	SessionTypeConsultation SessionType = "consultation"
	SessionTypePanchakarma  SessionType = "panchakarma"
	SessionTypeAbhyanga     SessionType = "abhyanga"
	SessionTypeShirodhara   SessionType = "shirodhara"
)

// BookingRequest is the transient input of a booking attempt. It is
// consumed once: either it becomes a ConfirmedBooking or it is discarded
// in favor of alternatives.
type BookingRequest struct {
	ProviderID      uuid.UUID   `json:"provider_id" binding:"required"`
	PatientID       uuid.UUID   `json:"patient_id" binding:"required"`
	RequestedStart  time.Time   `json:"requested_start" binding:"required"`
	DurationMinutes int         `json:"duration_minutes" binding:"required"`
	SessionType     SessionType `json:"session_type" validate:"omitempty,oneof=consultation panchakarma abhyanga shirodhara"`
	Fee             float64     `json:"fee" validate:"gte=0"`
	Notes           string      `json:"notes" validate:"max=1000"`
}

// Interval derives the requested occupancy.
func (r *BookingRequest) Interval() TimeInterval {
	return TimeInterval{
		Start:      r.RequestedStart,
		End:        r.RequestedStart.Add(time.Duration(r.DurationMinutes) * time.Minute),
		ResourceID: r.ProviderID.String(),
	}
}

// ConfirmedBooking is the persisted outcome of a committed attempt.
// Only Status (and CancelReason) mutate after creation; the reference is
// assigned exactly once.
type ConfirmedBooking struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	Reference    string        `db:"reference" json:"reference"`
	ProviderID   uuid.UUID     `db:"provider_id" json:"provider_id"`
	PatientID    uuid.UUID     `db:"patient_id" json:"patient_id"`
	StartTime    time.Time     `db:"start_time" json:"start_time"`
	EndTime      time.Time     `db:"end_time" json:"end_time"`
	SessionType  SessionType   `db:"session_type" json:"session_type"`
	Fee          float64       `db:"fee" json:"fee"`
	Status       BookingStatus `db:"status" json:"status"`
	Notes        string        `db:"notes" json:"notes,omitempty"`
	CancelReason *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Interval returns the booked occupancy.
func (b *ConfirmedBooking) Interval() TimeInterval {
	return TimeInterval{Start: b.StartTime, End: b.EndTime, ResourceID: b.ProviderID.String()}
}

// AlternativeSlot is an open slot suggested when the requested one is
// taken. Computed per request, never persisted.
type AlternativeSlot struct {
	Interval        TimeInterval `json:"interval"`
	Rank            int          `json:"rank"`
	DistanceMinutes int          `json:"distance_minutes"`
	DayOffset       int          `json:"day_offset"`
}

// BookingOutcome is the terminal state of one booking attempt.
type BookingOutcome string

const (
	OutcomeCommitted           BookingOutcome = "committed"
	OutcomeAlternativesOffered BookingOutcome = "alternatives_offered"
	OutcomeRejected            BookingOutcome = "rejected"
)

// BookingResult carries exactly one of: a committed booking, a ranked
// alternative list, or a rejection reason.
type BookingResult struct {
	Outcome      BookingOutcome    `json:"outcome"`
	Booking      *ConfirmedBooking `json:"booking,omitempty"`
	Alternatives []AlternativeSlot `json:"alternatives,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	ReasonField  string            `json:"reason_field,omitempty"`
}

// NoAlternatives reports the legitimate empty outcome: the caller
// decides the user-facing message.
func (r *BookingResult) NoAlternatives() bool {
	return r.Outcome == OutcomeAlternativesOffered && len(r.Alternatives) == 0
}

type BookingFilters struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Status     BookingStatus
	From       time.Time
	To         time.Time
}
