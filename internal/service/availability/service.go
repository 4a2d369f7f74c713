package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
)

// Service computes the bookable slot grid for a provider and date from
// the working-hours template, before existing bookings are subtracted.
// Grids are deterministic for a template+date pair, so computed days are
// cached; the cache is flushed when a template changes.
type Service struct {
	providers repository.ProviderRepository
	clock     clock.Clock
	cache     *gocache.Cache
}

func NewService(providers repository.ProviderRepository, clk clock.Clock, cacheTTL time.Duration) *Service {
	return &Service{
		providers: providers,
		clock:     clk,
		cache:     gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// DaySlots returns the ordered candidate slots for the provider on the
// given date. Empty when the weekday is outside the template, the date
// is a holiday, or the date is already past (date granularity).
func (s *Service) DaySlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]model.TimeInterval, error) {
	key := cacheKey(providerID, date)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]model.TimeInterval), nil
	}

	hours, err := s.providers.GetWorkingHours(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load working hours: %w", err)
	}

	slots := GenerateDaySlots(hours, date, s.clock.Now())
	s.cache.Set(key, slots, gocache.DefaultExpiration)
	return slots, nil
}

// Invalidate drops every cached grid. Called after a working-hours
// template update; per-day precision is not worth tracking keys for.
func (s *Service) Invalidate() {
	s.cache.Flush()
}

func cacheKey(providerID uuid.UUID, date time.Time) string {
	return providerID.String() + "|" + date.Format("2006-01-02")
}

// GenerateDaySlots expands a working-hours template into the contiguous
// slot grid for one date. Pure: same template, date and today always
// yield the same sequence. A trailing window shorter than the slot
// duration is dropped, and slots intersecting a break window are never
// offered.
func GenerateDaySlots(hours *model.WorkingHours, date time.Time, today time.Time) []model.TimeInterval {
	if beforeToday(date, today) {
		return nil
	}
	if !hours.WorksOn(date.Weekday()) {
		return nil
	}
	if hours.IsHoliday(date.Format("2006-01-02")) {
		return nil
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	slotLen := time.Duration(hours.SlotDurationMinutes) * time.Minute

	var slots []model.TimeInterval
	for startMin := hours.DayStartMinute; startMin+hours.SlotDurationMinutes <= hours.DayEndMinute; startMin += hours.SlotDurationMinutes {
		endMin := startMin + hours.SlotDurationMinutes
		if overlapsBreak(hours.Breaks, startMin, endMin) {
			continue
		}
		start := midnight.Add(time.Duration(startMin) * time.Minute)
		slots = append(slots, model.TimeInterval{
			Start:      start,
			End:        start.Add(slotLen),
			ResourceID: hours.ProviderID.String(),
		})
	}
	return slots
}

// SubtractBookings filters the grid down to slots that do not overlap
// any of the given bookings (half-open rule).
func SubtractBookings(slots []model.TimeInterval, bookings []*model.ConfirmedBooking) []model.TimeInterval {
	if len(bookings) == 0 {
		return slots
	}
	open := make([]model.TimeInterval, 0, len(slots))
	for _, slot := range slots {
		taken := false
		for _, b := range bookings {
			if slot.Overlaps(b.Interval()) {
				taken = true
				break
			}
		}
		if !taken {
			open = append(open, slot)
		}
	}
	return open
}

func overlapsBreak(breaks []model.BreakWindow, startMin, endMin int) bool {
	for _, b := range breaks {
		if startMin < b.EndMinute && b.StartMinute < endMin {
			return true
		}
	}
	return false
}

func beforeToday(date, today time.Time) bool {
	dy, dm, dd := date.Date()
	ty, tm, td := today.Date()
	if dy != ty {
		return dy < ty
	}
	if dm != tm {
		return dm < tm
	}
	return dd < td
}
