package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type prescriptionRepository struct {
	db *sqlx.DB
}

func NewPrescriptionRepository(db *sqlx.DB) repository.PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

type prescriptionRow struct {
	ID             uuid.UUID       `db:"id"`
	Reference      string          `db:"reference"`
	PatientID      uuid.UUID       `db:"patient_id"`
	ProviderID     uuid.UUID       `db:"provider_id"`
	BookingID      *uuid.UUID      `db:"booking_id"`
	ChiefComplaint string          `db:"chief_complaint"`
	Diagnosis      string          `db:"diagnosis"`
	Medicines      json.RawMessage `db:"medicines"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (row *prescriptionRow) toModel() (*model.Prescription, error) {
	var medicines []model.PrescriptionMedicine
	if len(row.Medicines) > 0 {
		if err := json.Unmarshal(row.Medicines, &medicines); err != nil {
			return nil, fmt.Errorf("failed to decode medicines: %w", err)
		}
	}
	return &model.Prescription{
		ID:             row.ID,
		Reference:      row.Reference,
		PatientID:      row.PatientID,
		ProviderID:     row.ProviderID,
		BookingID:      row.BookingID,
		ChiefComplaint: row.ChiefComplaint,
		Diagnosis:      row.Diagnosis,
		Medicines:      medicines,
		Status:         model.PrescriptionStatus(row.Status),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func (r *prescriptionRepository) Insert(ctx context.Context, p *model.Prescription) error {
	medicines, err := json.Marshal(p.Medicines)
	if err != nil {
		return fmt.Errorf("failed to encode medicines: %w", err)
	}

	query := `
		INSERT INTO prescriptions (
			id, reference, patient_id, provider_id, booking_id,
			chief_complaint, diagnosis, medicines, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Reference,
		p.PatientID,
		p.ProviderID,
		p.BookingID,
		p.ChiefComplaint,
		p.Diagnosis,
		medicines,
		p.Status,
		p.CreatedAt,
		p.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `
		SELECT id, reference, patient_id, provider_id, booking_id,
		       chief_complaint, diagnosis, medicines, status,
		       created_at, updated_at
		FROM prescriptions
		WHERE id = $1
	`
	var row prescriptionRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrPrescriptionNotFound
		}
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return row.toModel()
}

func (r *prescriptionRepository) UpdateReference(ctx context.Context, id uuid.UUID, reference string) error {
	query := `
		UPDATE prescriptions
		SET reference = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, reference, time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateReference
		}
		return fmt.Errorf("failed to update prescription reference: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrPrescriptionNotFound
	}
	return nil
}

func (r *prescriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prescription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrPrescriptionNotFound
	}
	return nil
}

func (r *prescriptionRepository) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	query := `
		SELECT id, reference, patient_id, provider_id, booking_id,
		       chief_complaint, diagnosis, medicines, status,
		       created_at, updated_at
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	var rows []prescriptionRow
	if err := r.db.SelectContext(ctx, &rows, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}

	prescriptions := make([]*model.Prescription, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, nil
}
