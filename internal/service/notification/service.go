package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// Service records booking lifecycle events in the outbox. Delivery is
// the worker's problem; a failed outbox write is logged and swallowed
// so a notification hiccup never rolls back a committed booking.
type Service struct {
	outbox repository.OutboxRepository
	logger *logger.Logger
}

func NewService(outbox repository.OutboxRepository, log *logger.Logger) *Service {
	return &Service{outbox: outbox, logger: log}
}

func (s *Service) BookingCommitted(ctx context.Context, booking *model.ConfirmedBooking) {
	s.enqueue(ctx, model.EventBookingCommitted, booking)
}

func (s *Service) BookingCancelled(ctx context.Context, booking *model.ConfirmedBooking) {
	s.enqueue(ctx, model.EventBookingCancelled, booking)
}

func (s *Service) BookingCompleted(ctx context.Context, booking *model.ConfirmedBooking) {
	s.enqueue(ctx, model.EventBookingCompleted, booking)
}

func (s *Service) PrescriptionIssued(ctx context.Context, p *model.Prescription) {
	s.enqueue(ctx, model.EventPrescriptionIssued, p)
}

func (s *Service) enqueue(ctx context.Context, eventType string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error(err, "failed to marshal outbox payload", "event_type", eventType)
		return
	}

	now := time.Now()
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		s.logger.Error(err, "failed to enqueue outbox event", "event_type", eventType)
	}
}
