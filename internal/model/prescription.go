package model

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "active"
	PrescriptionStatusCompleted PrescriptionStatus = "completed"
	PrescriptionStatusCancelled PrescriptionStatus = "cancelled"
)

type PrescriptionMedicine struct {
	Name         string `json:"name" binding:"required"`
	Dosage       string `json:"dosage" binding:"required"`
	Frequency    string `json:"frequency" validate:"omitempty,oneof='Once daily' 'Twice daily' 'Thrice daily' 'As needed'"`
	DurationDays int    `json:"duration_days" validate:"gte=0"`
	Quantity     int    `json:"quantity" validate:"gte=0"`
}

// Prescription records issued medicines for a consultation. Its
// Reference follows the same generation contract as booking references
// (RX prefix, unique per table).
type Prescription struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	Reference      string             `db:"reference" json:"reference"`
	PatientID      uuid.UUID          `db:"patient_id" json:"patient_id"`
	ProviderID     uuid.UUID          `db:"provider_id" json:"provider_id"`
	BookingID      *uuid.UUID         `db:"booking_id" json:"booking_id,omitempty"`
	ChiefComplaint string             `db:"chief_complaint" json:"chief_complaint"`
	Diagnosis      string             `db:"diagnosis" json:"diagnosis,omitempty"`
	Medicines      []PrescriptionMedicine `db:"-" json:"medicines"`
	Status         PrescriptionStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

type CreatePrescriptionRequest struct {
	PatientID      uuid.UUID              `json:"patient_id" binding:"required"`
	ProviderID     uuid.UUID              `json:"provider_id" binding:"required"`
	BookingID      *uuid.UUID             `json:"booking_id"`
	ChiefComplaint string                 `json:"chief_complaint" binding:"required"`
	Diagnosis      string                 `json:"diagnosis"`
	Medicines      []PrescriptionMedicine `json:"medicines" binding:"required,min=1"`
}
