package booking

import (
	"context"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	"github.com/jwalitptl/booking-api/internal/service/reference"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

var (
	providerID = uuid.MustParse("5a3e9c1e-7c2a-4b6f-9f6d-2f4f0b7c8d9e")
	patientID  = uuid.MustParse("c0ffee00-0000-4000-8000-000000000001")

	// Tuesday morning; requests target the following Monday.
	now            = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	mondayTen      = time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	bookingPattern = regexp.MustCompile(`^BOOK-\d{6}-[0-9A-F]{6}-\d{4}$`)
)

// fakeBookingRepo reproduces the guarded-insert contract in memory: the
// overlap check and the insert happen under one lock, so concurrent
// attempts observe the same atomicity the SQL statement provides.
type fakeBookingRepo struct {
	mu            sync.Mutex
	rows          map[uuid.UUID]*model.ConfirmedBooking
	refs          map[string]bool
	refFailures   int
	forceConflict bool
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		rows: make(map[uuid.UUID]*model.ConfirmedBooking),
		refs: make(map[string]bool),
	}
}

func (f *fakeBookingRepo) Get(ctx context.Context, id uuid.UUID) (*model.ConfirmedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBookingRepo) ListScheduled(ctx context.Context, provider uuid.UUID, from, to time.Time) ([]*model.ConfirmedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ConfirmedBooking
	for _, b := range f.rows {
		if b.ProviderID != provider || b.Status != model.BookingStatusScheduled {
			continue
		}
		if b.StartTime.Before(to) && b.EndTime.After(from) {
			copied := *b
			out = append(out, &copied)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartTime.Before(out[j-1].StartTime); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) InsertIfNoConflict(ctx context.Context, booking *model.ConfirmedBooking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceConflict {
		return repository.ErrBookingConflict
	}
	for _, existing := range f.rows {
		if existing.ProviderID != booking.ProviderID || existing.Status != model.BookingStatusScheduled {
			continue
		}
		if booking.StartTime.Before(existing.EndTime) && existing.StartTime.Before(booking.EndTime) {
			return repository.ErrBookingConflict
		}
	}
	copied := *booking
	f.rows[booking.ID] = &copied
	f.refs[booking.Reference] = true
	return nil
}

func (f *fakeBookingRepo) UpdateReference(ctx context.Context, id uuid.UUID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refFailures > 0 {
		f.refFailures--
		return repository.ErrDuplicateReference
	}
	if f.refs[ref] {
		return repository.ErrDuplicateReference
	}
	b, ok := f.rows[id]
	if !ok {
		return repository.ErrBookingNotFound
	}
	delete(f.refs, b.Reference)
	b.Reference = ref
	f.refs[ref] = true
	return nil
}

func (f *fakeBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, cancelReason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok || b.Status != from {
		return repository.ErrBookingNotFound
	}
	b.Status = to
	b.CancelReason = cancelReason
	return nil
}

func (f *fakeBookingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return repository.ErrBookingNotFound
	}
	delete(f.refs, b.Reference)
	delete(f.rows, id)
	return nil
}

func (f *fakeBookingRepo) ListForPatient(ctx context.Context, patient uuid.UUID, limit, offset int) ([]*model.ConfirmedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ConfirmedBooking
	for _, b := range f.rows {
		if b.PatientID == patient {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type stubProviderRepo struct {
	hours   *model.WorkingHours
	missing bool
}

func (s *stubProviderRepo) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	if s.missing {
		return nil, repository.ErrProviderNotFound
	}
	return &model.Provider{ID: id}, nil
}

func (s *stubProviderRepo) Create(ctx context.Context, provider *model.Provider) error { return nil }

func (s *stubProviderRepo) GetWorkingHours(ctx context.Context, id uuid.UUID) (*model.WorkingHours, error) {
	if s.hours == nil {
		return nil, repository.ErrWorkingHoursNotFound
	}
	return s.hours, nil
}

func (s *stubProviderRepo) UpsertWorkingHours(ctx context.Context, hours *model.WorkingHours) error {
	s.hours = hours
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	committed []uuid.UUID
	cancelled []uuid.UUID
	completed []uuid.UUID
}

func (r *recordingNotifier) BookingCommitted(ctx context.Context, b *model.ConfirmedBooking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, b.ID)
}

func (r *recordingNotifier) BookingCancelled(ctx context.Context, b *model.ConfirmedBooking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, b.ID)
}

func (r *recordingNotifier) BookingCompleted(ctx context.Context, b *model.ConfirmedBooking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, b.ID)
}

type fixture struct {
	svc       *Service
	repo      *fakeBookingRepo
	providers *stubProviderRepo
	notifier  *recordingNotifier
	clock     *clock.Fixed
}

func newFixture(t *testing.T, workingDays []time.Weekday) *fixture {
	t.Helper()
	hours, err := model.NewWorkingHours(providerID, workingDays, 9*60, 17*60, 30, nil, nil)
	require.NoError(t, err)

	clk := clock.NewFixed(now)
	repo := newFakeBookingRepo()
	providers := &stubProviderRepo{hours: hours}
	notifier := &recordingNotifier{}
	avail := availability.NewService(providers, clk, time.Minute)
	gen := reference.NewGenerator(clk, 3)
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, TimeFormat: time.RFC3339, Output: io.Discard})

	cfg := RankerConfig{SearchHorizonDays: 3, MaxAlternatives: 5, DayOffsetWeightMinutes: 1440}
	return &fixture{
		svc:       NewService(repo, providers, avail, gen, notifier, clk, log, cfg),
		repo:      repo,
		providers: providers,
		notifier:  notifier,
		clock:     clk,
	}
}

func weekdays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

func requestAt(start time.Time) *model.BookingRequest {
	return &model.BookingRequest{
		ProviderID:      providerID,
		PatientID:       patientID,
		RequestedStart:  start,
		DurationMinutes: 30,
		SessionType:     model.SessionTypeConsultation,
		Fee:             500,
	}
}

func TestRequestBookingCommits(t *testing.T) {
	fx := newFixture(t, weekdays())

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	require.Equal(t, model.OutcomeCommitted, result.Outcome)
	require.NotNil(t, result.Booking)
	assert.Regexp(t, bookingPattern, result.Booking.Reference)
	assert.Equal(t, model.BookingStatusScheduled, result.Booking.Status)
	assert.Equal(t, mondayTen, result.Booking.StartTime)
	assert.Equal(t, mondayTen.Add(30*time.Minute), result.Booking.EndTime)
	assert.Equal(t, 1, fx.repo.count())
	assert.Len(t, fx.notifier.committed, 1)

	stored, err := fx.repo.Get(context.Background(), result.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Booking.Reference, stored.Reference)
}

func TestRequestBookingConflictOffersAlternatives(t *testing.T) {
	fx := newFixture(t, weekdays())

	first, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeCommitted, first.Outcome)

	second, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	require.Equal(t, model.OutcomeAlternativesOffered, second.Outcome)
	require.NotEmpty(t, second.Alternatives)
	assert.Nil(t, second.Booking)
	assert.LessOrEqual(t, len(second.Alternatives), 5)

	// 09:30 and 10:30 are both 30 minutes away; the tie breaks earlier.
	assert.Equal(t, mondayTen.Add(-30*time.Minute), second.Alternatives[0].Interval.Start)
	assert.Equal(t, mondayTen.Add(30*time.Minute), second.Alternatives[1].Interval.Start)

	for i, alt := range second.Alternatives {
		assert.Equal(t, i+1, alt.Rank)
		assert.NotEqual(t, mondayTen, alt.Interval.Start, "taken slot must not be suggested")
	}
	assert.Equal(t, 1, fx.repo.count())
}

func TestRequestBookingAdjacentSlotsDoNotConflict(t *testing.T) {
	fx := newFixture(t, weekdays())

	first, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeCommitted, first.Outcome)

	// Ends exactly where the first begins, and starts exactly where it ends.
	before, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen.Add(-30*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCommitted, before.Outcome)

	after, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen.Add(30*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCommitted, after.Outcome)

	assert.Equal(t, 3, fx.repo.count())
}

func TestRequestBookingValidation(t *testing.T) {
	fx := newFixture(t, weekdays())

	tests := []struct {
		name   string
		mutate func(*model.BookingRequest)
		field  string
	}{
		{"past start", func(r *model.BookingRequest) { r.RequestedStart = now.Add(-time.Hour) }, "requested_start"},
		{"zero duration", func(r *model.BookingRequest) { r.DurationMinutes = 0 }, "duration_minutes"},
		{"negative duration", func(r *model.BookingRequest) { r.DurationMinutes = -30 }, "duration_minutes"},
		{"missing provider", func(r *model.BookingRequest) { r.ProviderID = uuid.Nil }, "provider_id"},
		{"missing patient", func(r *model.BookingRequest) { r.PatientID = uuid.Nil }, "patient_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestAt(mondayTen)
			tt.mutate(req)

			result, err := fx.svc.RequestBooking(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, model.OutcomeRejected, result.Outcome)
			assert.Equal(t, tt.field, result.ReasonField)
			assert.Equal(t, 0, fx.repo.count())
		})
	}
}

func TestRequestBookingUnknownProviderRejected(t *testing.T) {
	fx := newFixture(t, weekdays())
	fx.providers.missing = true

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeRejected, result.Outcome)
	assert.Equal(t, "provider_id", result.ReasonField)
	assert.Equal(t, 0, fx.repo.count(), "no row may be written for an unknown provider")

	_, err = fx.svc.Alternatives(context.Background(), requestAt(mondayTen))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Equal(t, "provider_id", appErr.Field)
}

func TestRequestBookingMissingWorkingHoursRejected(t *testing.T) {
	fx := newFixture(t, weekdays())
	// Provider exists but never configured a template; the alternatives
	// path must reject instead of surfacing an internal error.
	fx.providers.hours = nil
	fx.repo.forceConflict = true

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeRejected, result.Outcome)
	assert.Equal(t, "provider_id", result.ReasonField)
	assert.Equal(t, 0, fx.repo.count())
}

func TestRequestBookingReferenceRetrySucceeds(t *testing.T) {
	fx := newFixture(t, weekdays())
	fx.repo.refFailures = 2

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCommitted, result.Outcome)
	assert.Regexp(t, bookingPattern, result.Booking.Reference)
}

func TestRequestBookingReferenceExhaustionRollsBack(t *testing.T) {
	fx := newFixture(t, weekdays())
	fx.repo.refFailures = 3

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeRejected, result.Outcome)
	assert.Equal(t, ReasonReferenceGeneration, result.Reason)
	assert.Equal(t, 0, fx.repo.count(), "held slot must be released")
	assert.Empty(t, fx.notifier.committed)

	// Slot is bookable again after the rollback.
	retry, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCommitted, retry.Outcome)
}

func TestRequestBookingLostRaceOffersAlternatives(t *testing.T) {
	fx := newFixture(t, weekdays())
	// Pre-check sees nothing, insert still reports a conflict.
	fx.repo.forceConflict = true

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAlternativesOffered, result.Outcome)
	assert.NotEmpty(t, result.Alternatives)
}

func TestRequestBookingNoAlternatives(t *testing.T) {
	// Provider works Mondays only; fill the day so nothing within the
	// horizon remains open.
	fx := newFixture(t, []time.Weekday{time.Monday})

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	for min := 9 * 60; min < 17*60; min += 30 {
		result, err := fx.svc.RequestBooking(context.Background(), requestAt(monday.Add(time.Duration(min)*time.Minute)))
		require.NoError(t, err)
		require.Equal(t, model.OutcomeCommitted, result.Outcome)
	}

	result, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAlternativesOffered, result.Outcome)
	assert.Empty(t, result.Alternatives)
	assert.True(t, result.NoAlternatives())
}

func TestRequestBookingConcurrentSameSlot(t *testing.T) {
	fx := newFixture(t, weekdays())

	const attempts = 8
	results := make([]*model.BookingResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
		}(i)
	}
	wg.Wait()

	committed := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		switch results[i].Outcome {
		case model.OutcomeCommitted:
			committed++
		case model.OutcomeAlternativesOffered:
		default:
			t.Fatalf("unexpected outcome %s", results[i].Outcome)
		}
	}

	assert.Equal(t, 1, committed, "exactly one attempt may win the slot")
	assert.Equal(t, 1, fx.repo.count())
	assert.Len(t, fx.notifier.committed, 1)
}

func TestCheckSlot(t *testing.T) {
	fx := newFixture(t, weekdays())

	free, conflicting, err := fx.svc.CheckSlot(context.Background(), providerID, mondayTen, 30)
	require.NoError(t, err)
	assert.True(t, free)
	assert.Nil(t, conflicting)

	committed, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeCommitted, committed.Outcome)

	free, conflicting, err = fx.svc.CheckSlot(context.Background(), providerID, mondayTen.Add(15*time.Minute), 30)
	require.NoError(t, err)
	assert.False(t, free)
	require.NotNil(t, conflicting)
	assert.Equal(t, committed.Booking.ID, conflicting.ID)
}

func TestListProviderDaySubtractsBookings(t *testing.T) {
	fx := newFixture(t, weekdays())

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	open, err := fx.svc.ListProviderDay(context.Background(), providerID, monday)
	require.NoError(t, err)
	require.Len(t, open, 16)

	_, err = fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	open, err = fx.svc.ListProviderDay(context.Background(), providerID, monday)
	require.NoError(t, err)
	assert.Len(t, open, 15)
	for _, slot := range open {
		assert.NotEqual(t, mondayTen, slot.Start)
	}
}

func TestCancelBooking(t *testing.T) {
	fx := newFixture(t, weekdays())

	committed, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)
	id := committed.Booking.ID

	cancelled, err := fx.svc.CancelBooking(context.Background(), id, "patient unavailable")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "patient unavailable", *cancelled.CancelReason)
	assert.Len(t, fx.notifier.cancelled, 1)

	// Cancellation is terminal.
	_, err = fx.svc.CancelBooking(context.Background(), id, "again")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)

	// The slot opens up again.
	rebooked, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCommitted, rebooked.Outcome)
}

func TestCompleteBooking(t *testing.T) {
	fx := newFixture(t, weekdays())

	committed, err := fx.svc.RequestBooking(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	completed, err := fx.svc.CompleteBooking(context.Background(), committed.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, completed.Status)
	assert.Len(t, fx.notifier.completed, 1)

	_, err = fx.svc.CompleteBooking(context.Background(), committed.Booking.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrConflict, appErr.Code)
}

func TestCancelUnknownBooking(t *testing.T) {
	fx := newFixture(t, weekdays())

	_, err := fx.svc.CancelBooking(context.Background(), uuid.New(), "whatever")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

func TestAlternativesSpanHorizon(t *testing.T) {
	fx := newFixture(t, weekdays())

	// Fill Monday completely; the ranker must reach into later days.
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	for min := 9 * 60; min < 17*60; min += 30 {
		result, err := fx.svc.RequestBooking(context.Background(), requestAt(monday.Add(time.Duration(min)*time.Minute)))
		require.NoError(t, err)
		require.Equal(t, model.OutcomeCommitted, result.Outcome)
	}

	alternatives, err := fx.svc.Alternatives(context.Background(), requestAt(mondayTen))
	require.NoError(t, err)

	require.NotEmpty(t, alternatives)
	for _, alt := range alternatives {
		assert.Greater(t, alt.DayOffset, 0, "Monday is full, offsets must move forward")
		assert.LessOrEqual(t, alt.DayOffset, 3)
	}
	// Tuesday 10:00 matches the requested time-of-day exactly and
	// carries the smallest offset penalty.
	assert.Equal(t, mondayTen.AddDate(0, 0, 1), alternatives[0].Interval.Start)
}
