package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
)

// Sentinel errors shared by every storage implementation. Services
// branch on these, never on driver-specific error types.
var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrProviderNotFound     = errors.New("provider not found")
	ErrWorkingHoursNotFound = errors.New("working hours not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")

	// ErrBookingConflict is returned by the guarded insert when an
	// overlapping scheduled booking already exists at write time.
	ErrBookingConflict = errors.New("booking conflicts with an existing scheduled booking")

	// ErrDuplicateReference is returned when a reference candidate
	// violates the table's uniqueness constraint.
	ErrDuplicateReference = errors.New("reference already assigned")
)

// All repository interfaces in one file
type (
	// BookingRepository owns the shared mutable booking state. All
	// mutation of a provider's day goes through InsertIfNoConflict.
	BookingRepository interface {
		// Get returns a booking by id.
		Get(ctx context.Context, id uuid.UUID) (*model.ConfirmedBooking, error)

		// ListScheduled returns the provider's scheduled bookings whose
		// interval intersects [from, to), ordered by start time.
		// Cancelled and completed bookings are excluded here, before
		// any conflict decision is made.
		ListScheduled(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.ConfirmedBooking, error)

		// InsertIfNoConflict atomically inserts the booking only if no
		// overlapping scheduled booking exists for the provider.
		// Losing the race yields ErrBookingConflict and no row.
		InsertIfNoConflict(ctx context.Context, booking *model.ConfirmedBooking) error

		// UpdateReference assigns the unique reference; duplicates
		// yield ErrDuplicateReference.
		UpdateReference(ctx context.Context, id uuid.UUID, reference string) error

		// UpdateStatus performs an append-only status transition
		// guarded by the expected current status.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, cancelReason *string) error

		// Delete removes a booking row. Used only to roll back a
		// commit whose reference assignment exhausted its retries.
		Delete(ctx context.Context, id uuid.UUID) error

		ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*model.ConfirmedBooking, error)
	}

	ProviderRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		Create(ctx context.Context, provider *model.Provider) error
		GetWorkingHours(ctx context.Context, providerID uuid.UUID) (*model.WorkingHours, error)
		UpsertWorkingHours(ctx context.Context, hours *model.WorkingHours) error
	}

	PrescriptionRepository interface {
		Insert(ctx context.Context, p *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		UpdateReference(ctx context.Context, id uuid.UUID, reference string) error
		Delete(ctx context.Context, id uuid.UUID) error
		ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error)
	}

	// OutboxRepository buffers booking lifecycle events written in the
	// request path and drained asynchronously by the worker.
	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error

		// GetPendingEvents atomically claims up to limit pending events
		// by moving them to PROCESSING; a concurrent claim never returns
		// the same event.
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)

		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMessage *string) error

		// RequeueStale moves PROCESSING events untouched since before
		// back to PENDING, recovering batches from crashed workers.
		RequeueStale(ctx context.Context, before time.Time) (int64, error)

		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
