package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type bookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `
	id, reference, provider_id, patient_id,
	start_time, end_time, session_type, fee,
	status, notes, cancel_reason, created_at, updated_at
`

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.ConfirmedBooking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var booking model.ConfirmedBooking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

func (r *bookingRepository) ListScheduled(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.ConfirmedBooking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE provider_id = $1
		AND status = 'scheduled'
		AND start_time < $3
		AND end_time > $2
		ORDER BY start_time ASC
	`
	var bookings []*model.ConfirmedBooking
	if err := r.db.SelectContext(ctx, &bookings, query, providerID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list scheduled bookings: %w", err)
	}
	return bookings, nil
}

// InsertIfNoConflict performs the guarded write: the row is inserted in
// the same statement that re-checks for an overlapping scheduled
// booking, so two racing attempts cannot both commit. A btree_gist
// exclusion constraint on (provider_id, tsrange(start_time, end_time))
// backstops the predicate; either path maps to ErrBookingConflict.
func (r *bookingRepository) InsertIfNoConflict(ctx context.Context, booking *model.ConfirmedBooking) error {
	query := `
		INSERT INTO bookings (
			id, reference, provider_id, patient_id,
			start_time, end_time, session_type, fee,
			status, notes, created_at, updated_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings
			WHERE provider_id = $3
			AND status = 'scheduled'
			AND start_time < $6
			AND end_time > $5
		)
	`
	result, err := r.db.ExecContext(ctx, query,
		booking.ID,
		booking.Reference,
		booking.ProviderID,
		booking.PatientID,
		booking.StartTime,
		booking.EndTime,
		booking.SessionType,
		booking.Fee,
		booking.Status,
		booking.Notes,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		if isExclusionViolation(err) {
			return repository.ErrBookingConflict
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrBookingConflict
	}
	return nil
}

func (r *bookingRepository) UpdateReference(ctx context.Context, id uuid.UUID, reference string) error {
	query := `
		UPDATE bookings
		SET reference = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, reference, time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateReference
		}
		return fmt.Errorf("failed to update booking reference: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrBookingNotFound
	}
	return nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, cancelReason *string) error {
	query := `
		UPDATE bookings
		SET status = $1, cancel_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, to, cancelReason, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrBookingNotFound
	}
	return nil
}

func (r *bookingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrBookingNotFound
	}
	return nil
}

func (r *bookingRepository) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*model.ConfirmedBooking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`
	var bookings []*model.ConfirmedBooking
	if err := r.db.SelectContext(ctx, &bookings, query, patientID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list patient bookings: %w", err)
	}
	return bookings, nil
}

// Postgres error classes: 23505 unique_violation, 23P01 exclusion_violation.
// The overlap backstop is the bookings_no_overlap exclusion constraint;
// everything else unique-shaped is a reference collision.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code == "23P01" {
		return true
	}
	return pqErr.Code == "23505" && pqErr.Constraint == "bookings_no_overlap"
}
