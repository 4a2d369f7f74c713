package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	"github.com/jwalitptl/booking-api/internal/service/reference"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// Rejection reasons surfaced in BookingResult.Reason.
const (
	ReasonReferenceGeneration = "reference_generation_failed"
	ReasonTimeout             = "timeout"
)

// Notifier receives lifecycle events after a state change has been
// persisted. Implementations must not fail the calling request.
type Notifier interface {
	BookingCommitted(ctx context.Context, booking *model.ConfirmedBooking)
	BookingCancelled(ctx context.Context, booking *model.ConfirmedBooking)
	BookingCompleted(ctx context.Context, booking *model.ConfirmedBooking)
}

// Service drives a booking attempt from request to exactly one terminal
// outcome: committed, alternatives offered, or rejected. The guarded
// repository insert is the only mutation path, so two racing attempts
// for the same slot can never both commit; the loser is re-routed to
// the alternatives flow.
type Service struct {
	bookings     repository.BookingRepository
	providers    repository.ProviderRepository
	availability *availability.Service
	generator    *reference.Generator
	notifier     Notifier
	clock        clock.Clock
	logger       *logger.Logger
	cfg          RankerConfig
}

func NewService(
	bookings repository.BookingRepository,
	providers repository.ProviderRepository,
	avail *availability.Service,
	gen *reference.Generator,
	notifier Notifier,
	clk clock.Clock,
	log *logger.Logger,
	cfg RankerConfig,
) *Service {
	return &Service{
		bookings:     bookings,
		providers:    providers,
		availability: avail,
		generator:    gen,
		notifier:     notifier,
		clock:        clk,
		logger:       log,
		cfg:          cfg,
	}
}

// RequestBooking attempts to commit the requested slot.
//
// The pre-check against the provider's scheduled bookings is advisory:
// it routes obviously-taken slots to the alternatives flow without
// burning a write. The insert itself re-checks atomically, and a lost
// race comes back as a conflict too, so the read-then-write gap cannot
// double-book a slot.
func (s *Service) RequestBooking(ctx context.Context, req *model.BookingRequest) (*model.BookingResult, error) {
	if err := s.validate(req); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return &model.BookingResult{
				Outcome:     model.OutcomeRejected,
				Reason:      appErr.Message,
				ReasonField: appErr.Field,
			}, nil
		}
		return nil, err
	}

	if _, err := s.providers.Get(ctx, req.ProviderID); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return &model.BookingResult{
				Outcome:     model.OutcomeRejected,
				Reason:      "provider does not exist",
				ReasonField: "provider_id",
			}, nil
		}
		return s.mapInfraError(err, "failed to load provider")
	}

	requested := req.Interval()

	dayStart, dayEnd := dayWindow(req.RequestedStart)
	scheduled, err := s.bookings.ListScheduled(ctx, req.ProviderID, dayStart, dayEnd)
	if err != nil {
		return s.mapInfraError(err, "failed to load scheduled bookings")
	}

	if conflict := DetectConflict(requested, scheduled); conflict != nil {
		return s.offerAlternatives(ctx, req, requested)
	}

	now := s.clock.Now()
	booking := &model.ConfirmedBooking{
		ID:          uuid.New(),
		ProviderID:  req.ProviderID,
		PatientID:   req.PatientID,
		StartTime:   requested.Start,
		EndTime:     requested.End,
		SessionType: req.SessionType,
		Fee:         req.Fee,
		Status:      model.BookingStatusScheduled,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// Provisional reference keeps the uniqueness constraint satisfied
	// until the real one is assigned.
	booking.Reference = "PENDING-" + booking.ID.String()

	if err := s.bookings.InsertIfNoConflict(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrBookingConflict) {
			// Lost the race after the pre-check passed. One re-read,
			// then alternatives; no second insert attempt.
			s.logger.Info("booking lost insert race, offering alternatives",
				"provider_id", req.ProviderID.String())
			return s.offerAlternatives(ctx, req, requested)
		}
		return s.mapInfraError(err, "failed to insert booking")
	}

	ref, err := s.generator.Assign(ctx, reference.PrefixBooking, booking.ID, func(candidate string) error {
		return s.bookings.UpdateReference(ctx, booking.ID, candidate)
	})
	if err != nil {
		// The slot must not stay held by a booking nobody can cite.
		if delErr := s.bookings.Delete(ctx, booking.ID); delErr != nil {
			s.logger.Error(delErr, "failed to roll back booking after reference exhaustion",
				"booking_id", booking.ID.String())
		}
		s.logger.Error(err, "reference assignment exhausted",
			"booking_id", booking.ID.String())
		return &model.BookingResult{
			Outcome: model.OutcomeRejected,
			Reason:  ReasonReferenceGeneration,
		}, nil
	}
	booking.Reference = ref

	s.notifier.BookingCommitted(ctx, booking)

	return &model.BookingResult{
		Outcome: model.OutcomeCommitted,
		Booking: booking,
	}, nil
}

// CheckSlot reports whether the interval is free right now, and the
// first conflicting booking when it is not. Advisory only: the answer
// can be stale by commit time.
func (s *Service) CheckSlot(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int) (bool, *model.ConfirmedBooking, error) {
	requested, err := model.NewTimeInterval(start, start.Add(time.Duration(durationMinutes)*time.Minute), providerID.String())
	if err != nil {
		return false, nil, apperrors.NewValidation("duration_minutes", err.Error())
	}

	dayStart, dayEnd := dayWindow(start)
	scheduled, err := s.bookings.ListScheduled(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load scheduled bookings: %w", err)
	}

	if conflict := DetectConflict(requested, scheduled); conflict != nil {
		return false, conflict.With, nil
	}
	return true, nil, nil
}

// Alternatives ranks open slots near the requested one without
// attempting a commit.
func (s *Service) Alternatives(ctx context.Context, req *model.BookingRequest) ([]model.AlternativeSlot, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if _, err := s.providers.Get(ctx, req.ProviderID); err != nil {
		if errors.Is(err, repository.ErrProviderNotFound) {
			return nil, apperrors.NewValidation("provider_id", "provider does not exist")
		}
		return nil, err
	}
	return s.rankAlternatives(ctx, req, req.Interval())
}

// ListProviderDay returns the provider's open slots for a date after
// subtracting scheduled bookings.
func (s *Service) ListProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) ([]model.TimeInterval, error) {
	slots, err := s.availability.DaySlots(ctx, providerID, date)
	if err != nil {
		if errors.Is(err, repository.ErrWorkingHoursNotFound) {
			return nil, apperrors.NewNotFound("working hours", err)
		}
		return nil, err
	}

	dayStart, dayEnd := dayWindow(date)
	scheduled, err := s.bookings.ListScheduled(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled bookings: %w", err)
	}
	return availability.SubtractBookings(slots, scheduled), nil
}

// ListProviderBookings returns the provider's scheduled bookings for a
// date, in start order.
func (s *Service) ListProviderBookings(ctx context.Context, providerID uuid.UUID, date time.Time) ([]*model.ConfirmedBooking, error) {
	dayStart, dayEnd := dayWindow(date)
	bookings, err := s.bookings.ListScheduled(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled bookings: %w", err)
	}
	return bookings, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*model.ConfirmedBooking, error) {
	booking, err := s.bookings.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, apperrors.NewNotFound("booking", err)
		}
		return nil, err
	}
	return booking, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*model.ConfirmedBooking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListForPatient(ctx, patientID, limit, offset)
}

// CancelBooking transitions scheduled -> cancelled. The transition is
// append-only: a cancelled or completed booking stays that way.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*model.ConfirmedBooking, error) {
	return s.transition(ctx, id, model.BookingStatusCancelled, &reason, s.notifier.BookingCancelled)
}

// CompleteBooking transitions scheduled -> completed.
func (s *Service) CompleteBooking(ctx context.Context, id uuid.UUID) (*model.ConfirmedBooking, error) {
	return s.transition(ctx, id, model.BookingStatusCompleted, nil, s.notifier.BookingCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to model.BookingStatus, cancelReason *string, notify func(context.Context, *model.ConfirmedBooking)) (*model.ConfirmedBooking, error) {
	booking, err := s.bookings.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil, apperrors.NewNotFound("booking", err)
		}
		return nil, err
	}
	if booking.Status != model.BookingStatusScheduled {
		return nil, apperrors.NewConflict(
			fmt.Sprintf("booking is %s, only scheduled bookings can transition", booking.Status), nil)
	}

	if err := s.bookings.UpdateStatus(ctx, id, model.BookingStatusScheduled, to, cancelReason); err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			// Raced with another transition between the read and the
			// guarded update.
			return nil, apperrors.NewConflict("booking status changed concurrently", err)
		}
		return nil, err
	}

	booking.Status = to
	booking.CancelReason = cancelReason
	notify(ctx, booking)
	return booking, nil
}

func (s *Service) offerAlternatives(ctx context.Context, req *model.BookingRequest, requested model.TimeInterval) (*model.BookingResult, error) {
	alternatives, err := s.rankAlternatives(ctx, req, requested)
	if err != nil {
		return s.mapInfraError(err, "failed to rank alternatives")
	}
	return &model.BookingResult{
		Outcome:      model.OutcomeAlternativesOffered,
		Alternatives: alternatives,
	}, nil
}

func (s *Service) rankAlternatives(ctx context.Context, req *model.BookingRequest, requested model.TimeInterval) ([]model.AlternativeSlot, error) {
	days := make([]DayCandidates, 0, s.cfg.SearchHorizonDays+1)
	for offset := 0; offset <= s.cfg.SearchHorizonDays; offset++ {
		date := requested.Start.AddDate(0, 0, offset)
		slots, err := s.availability.DaySlots(ctx, req.ProviderID, date)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}

		dayStart, dayEnd := dayWindow(date)
		booked, err := s.bookings.ListScheduled(ctx, req.ProviderID, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		days = append(days, DayCandidates{DayOffset: offset, Slots: slots, Booked: booked})
	}
	return RankAlternatives(requested, days, s.clock.Now(), s.cfg), nil
}

func (s *Service) validate(req *model.BookingRequest) error {
	if req.ProviderID == uuid.Nil {
		return apperrors.NewValidation("provider_id", "provider id is required")
	}
	if req.PatientID == uuid.Nil {
		return apperrors.NewValidation("patient_id", "patient id is required")
	}
	if req.DurationMinutes <= 0 {
		return apperrors.NewValidation("duration_minutes", "duration must be positive")
	}
	if !req.RequestedStart.After(s.clock.Now()) {
		return apperrors.NewValidation("requested_start", "requested start must be in the future")
	}
	if req.SessionType == "" {
		req.SessionType = model.SessionTypeConsultation
	}
	return nil
}

// mapInfraError turns a deadline overrun or a provider without a
// working-hours template into a terminal rejection; anything else
// bubbles up as an internal error.
func (s *Service) mapInfraError(err error, msg string) (*model.BookingResult, error) {
	if errors.Is(err, repository.ErrWorkingHoursNotFound) {
		return &model.BookingResult{
			Outcome:     model.OutcomeRejected,
			Reason:      "provider has no working hours configured",
			ReasonField: "provider_id",
		}, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("booking attempt timed out", "error", err.Error())
		return &model.BookingResult{
			Outcome: model.OutcomeRejected,
			Reason:  ReasonTimeout,
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", msg, err)
}

func dayWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
