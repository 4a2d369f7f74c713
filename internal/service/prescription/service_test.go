package prescription

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/reference"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

type fakePrescriptionRepo struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]*model.Prescription
	refFailures int
}

func newFakePrescriptionRepo() *fakePrescriptionRepo {
	return &fakePrescriptionRepo{rows: make(map[uuid.UUID]*model.Prescription)}
}

func (f *fakePrescriptionRepo) Insert(ctx context.Context, p *model.Prescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *p
	f.rows[p.ID] = &copied
	return nil
}

func (f *fakePrescriptionRepo) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrPrescriptionNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakePrescriptionRepo) UpdateReference(ctx context.Context, id uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refFailures > 0 {
		f.refFailures--
		return repository.ErrDuplicateReference
	}
	p, ok := f.rows[id]
	if !ok {
		return repository.ErrPrescriptionNotFound
	}
	p.Reference = ref
	return nil
}

func (f *fakePrescriptionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrPrescriptionNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakePrescriptionRepo) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Prescription
	for _, p := range f.rows {
		if p.PatientID == patientID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type stubBookingRepo struct {
	booking *model.ConfirmedBooking
}

func (s *stubBookingRepo) Get(ctx context.Context, id uuid.UUID) (*model.ConfirmedBooking, error) {
	if s.booking == nil || s.booking.ID != id {
		return nil, repository.ErrBookingNotFound
	}
	return s.booking, nil
}

func (s *stubBookingRepo) ListScheduled(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.ConfirmedBooking, error) {
	return nil, nil
}

func (s *stubBookingRepo) InsertIfNoConflict(ctx context.Context, b *model.ConfirmedBooking) error {
	return nil
}

func (s *stubBookingRepo) UpdateReference(ctx context.Context, id uuid.UUID, ref string) error {
	return nil
}

func (s *stubBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, reason *string) error {
	return nil
}

func (s *stubBookingRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubBookingRepo) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*model.ConfirmedBooking, error) {
	return nil, nil
}

type recordingNotifier struct {
	issued []uuid.UUID
}

func (r *recordingNotifier) PrescriptionIssued(ctx context.Context, p *model.Prescription) {
	r.issued = append(r.issued, p.ID)
}

var (
	patientID  = uuid.MustParse("c0ffee00-0000-4000-8000-000000000001")
	providerID = uuid.MustParse("5a3e9c1e-7c2a-4b6f-9f6d-2f4f0b7c8d9e")
)

func newService(repo *fakePrescriptionRepo, bookings repository.BookingRepository) (*Service, *recordingNotifier) {
	clk := clock.NewFixed(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	gen := reference.NewGenerator(clk, 3)
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, TimeFormat: time.RFC3339, Output: io.Discard})
	return NewService(repo, bookings, gen, notifier, clk, log), notifier
}

func validRequest() *model.CreatePrescriptionRequest {
	return &model.CreatePrescriptionRequest{
		PatientID:      patientID,
		ProviderID:     providerID,
		ChiefComplaint: "persistent joint pain",
		Diagnosis:      "vata imbalance",
		Medicines: []model.PrescriptionMedicine{
			{Name: "Ashwagandha churna", Dosage: "5g", Frequency: "Twice daily", DurationDays: 30, Quantity: 1},
		},
	}
}

func TestCreateAssignsReference(t *testing.T) {
	repo := newFakePrescriptionRepo()
	svc, notifier := newService(repo, &stubBookingRepo{})

	p, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.Reference, "RX-"))
	assert.Equal(t, model.PrescriptionStatusActive, p.Status)
	assert.Len(t, notifier.issued, 1)

	stored, err := repo.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Reference, stored.Reference)
}

func TestCreateRequiresMedicines(t *testing.T) {
	svc, _ := newService(newFakePrescriptionRepo(), &stubBookingRepo{})

	req := validRequest()
	req.Medicines = nil

	_, err := svc.Create(context.Background(), req)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Equal(t, "medicines", appErr.Field)
}

func TestCreateValidatesBookingOwnership(t *testing.T) {
	bookingID := uuid.New()
	bookings := &stubBookingRepo{booking: &model.ConfirmedBooking{
		ID:        bookingID,
		PatientID: uuid.New(), // someone else's booking
	}}
	svc, _ := newService(newFakePrescriptionRepo(), bookings)

	req := validRequest()
	req.BookingID = &bookingID

	_, err := svc.Create(context.Background(), req)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "booking_id", appErr.Field)
}

func TestCreateUnknownBooking(t *testing.T) {
	svc, _ := newService(newFakePrescriptionRepo(), &stubBookingRepo{})

	unknown := uuid.New()
	req := validRequest()
	req.BookingID = &unknown

	_, err := svc.Create(context.Background(), req)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "booking_id", appErr.Field)
}

func TestCreateReferenceExhaustion(t *testing.T) {
	repo := newFakePrescriptionRepo()
	repo.refFailures = 3
	svc, notifier := newService(repo, &stubBookingRepo{})

	_, err := svc.Create(context.Background(), validRequest())
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrReferenceGeneration, appErr.Code)
	assert.Empty(t, notifier.issued)
	assert.Empty(t, repo.rows, "provisional row must be rolled back")
}

func TestCreateReferenceRetrySucceeds(t *testing.T) {
	repo := newFakePrescriptionRepo()
	repo.refFailures = 1
	svc, _ := newService(repo, &stubBookingRepo{})

	p, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Reference, "RX-"))
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newService(newFakePrescriptionRepo(), &stubBookingRepo{})

	_, err := svc.Get(context.Background(), uuid.New())
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}
