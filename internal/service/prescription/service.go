package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/reference"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// Notifier receives the issued event after the prescription persists.
type Notifier interface {
	PrescriptionIssued(ctx context.Context, p *model.Prescription)
}

// Service issues prescriptions. Reference assignment follows the same
// insert-then-assign contract as bookings: the row lands with a
// provisional reference and is rolled back if no unique reference can
// be found within the retry budget.
type Service struct {
	prescriptions repository.PrescriptionRepository
	bookings      repository.BookingRepository
	generator     *reference.Generator
	notifier      Notifier
	clock         clock.Clock
	logger        *logger.Logger
}

func NewService(
	prescriptions repository.PrescriptionRepository,
	bookings repository.BookingRepository,
	gen *reference.Generator,
	notifier Notifier,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		prescriptions: prescriptions,
		bookings:      bookings,
		generator:     gen,
		notifier:      notifier,
		clock:         clk,
		logger:        log,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	if len(req.Medicines) == 0 {
		return nil, apperrors.NewValidation("medicines", "at least one medicine is required")
	}
	for _, m := range req.Medicines {
		if m.Name == "" {
			return nil, apperrors.NewValidation("medicines", "medicine name is required")
		}
	}

	if req.BookingID != nil {
		booking, err := s.bookings.Get(ctx, *req.BookingID)
		if err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				return nil, apperrors.NewValidation("booking_id", "booking does not exist")
			}
			return nil, err
		}
		if booking.PatientID != req.PatientID {
			return nil, apperrors.NewValidation("booking_id", "booking belongs to a different patient")
		}
	}

	now := s.clock.Now()
	p := &model.Prescription{
		ID:             uuid.New(),
		PatientID:      req.PatientID,
		ProviderID:     req.ProviderID,
		BookingID:      req.BookingID,
		ChiefComplaint: req.ChiefComplaint,
		Diagnosis:      req.Diagnosis,
		Medicines:      req.Medicines,
		Status:         model.PrescriptionStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.Reference = "PENDING-" + p.ID.String()

	if err := s.prescriptions.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to insert prescription: %w", err)
	}

	ref, err := s.generator.Assign(ctx, reference.PrefixPrescription, p.ID, func(candidate string) error {
		return s.prescriptions.UpdateReference(ctx, p.ID, candidate)
	})
	if err != nil {
		if delErr := s.prescriptions.Delete(ctx, p.ID); delErr != nil {
			s.logger.Error(delErr, "failed to roll back prescription after reference exhaustion",
				"prescription_id", p.ID.String())
		}
		s.logger.Error(err, "prescription reference assignment exhausted",
			"prescription_id", p.ID.String())
		return nil, apperrors.NewReferenceGeneration(err)
	}
	p.Reference = ref

	s.notifier.PrescriptionIssued(ctx, p)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	p, err := s.prescriptions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPrescriptionNotFound) {
			return nil, apperrors.NewNotFound("prescription", err)
		}
		return nil, err
	}
	return p, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	return s.prescriptions.ListForPatient(ctx, patientID)
}
