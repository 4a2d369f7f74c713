package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ProviderType string

const (
	ProviderTypeDoctor    ProviderType = "doctor"
	ProviderTypeTherapist ProviderType = "therapist"
)

type Provider struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Email     string       `db:"email" json:"email"`
	Type      ProviderType `db:"provider_type" json:"provider_type"`
	Specialty *string      `db:"specialty" json:"specialty,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// BreakWindow is a recurring gap inside the working day, minutes from
// midnight.
type BreakWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// WorkingHours is a provider's weekly availability template. DayStart
// and DayEnd are minutes from midnight; slots shorter than
// SlotDurationMinutes at the tail of the window are never offered.
type WorkingHours struct {
	ProviderID          uuid.UUID      `json:"provider_id"`
	WorkingDays         []time.Weekday `json:"working_days"`
	DayStartMinute      int            `json:"day_start_minute"`
	DayEndMinute        int            `json:"day_end_minute"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	Breaks              []BreakWindow  `json:"breaks,omitempty"`
	Holidays            []string       `json:"holidays,omitempty"` // YYYY-MM-DD
}

var (
	ErrInvalidWorkingWindow = errors.New("day start must be before day end")
	ErrInvalidSlotDuration  = errors.New("slot duration must be positive")
	ErrInvalidBreakWindow   = errors.New("break start must be before break end")
)

// NewWorkingHours validates the template invariants at construction, so
// downstream slot generation never sees a malformed template.
func NewWorkingHours(providerID uuid.UUID, days []time.Weekday, dayStart, dayEnd, slotMinutes int, breaks []BreakWindow, holidays []string) (*WorkingHours, error) {
	if dayStart >= dayEnd || dayStart < 0 || dayEnd > 24*60 {
		return nil, ErrInvalidWorkingWindow
	}
	if slotMinutes <= 0 {
		return nil, ErrInvalidSlotDuration
	}
	for _, b := range breaks {
		if b.StartMinute >= b.EndMinute {
			return nil, ErrInvalidBreakWindow
		}
	}
	return &WorkingHours{
		ProviderID:          providerID,
		WorkingDays:         days,
		DayStartMinute:      dayStart,
		DayEndMinute:        dayEnd,
		SlotDurationMinutes: slotMinutes,
		Breaks:              breaks,
		Holidays:            holidays,
	}, nil
}

// WorksOn reports whether the weekday is part of the template.
func (w *WorkingHours) WorksOn(day time.Weekday) bool {
	for _, d := range w.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// IsHoliday reports whether the given date (YYYY-MM-DD) is blocked.
func (w *WorkingHours) IsHoliday(date string) bool {
	for _, h := range w.Holidays {
		if h == date {
			return true
		}
	}
	return false
}
