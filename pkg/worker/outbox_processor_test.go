package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

// fakeOutboxRepo reproduces the claiming contract: GetPendingEvents
// moves the returned rows to PROCESSING under one lock, so two drains
// racing over the same table never see the same event.
type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *event
	f.events = append(f.events, &copied)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claimed []*model.OutboxEvent
	for _, e := range f.events {
		if len(claimed) == limit {
			break
		}
		if e.Status != model.OutboxStatusPending {
			continue
		}
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = time.Now()
		copied := *e
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (f *fakeOutboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			e.Status = status
			e.ErrorMessage = errMessage
			e.UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.New("event not found")
}

func (f *fakeOutboxRepo) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var requeued int64
	for _, e := range f.events {
		if e.Status == model.OutboxStatusProcessing && e.UpdatedAt.Before(before) {
			e.Status = model.OutboxStatusPending
			requeued++
		}
	}
	return requeued, nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.events[:0]
	var deleted int64
	for _, e := range f.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeOutboxRepo) statusCounts() map[model.OutboxStatus]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.OutboxStatus]int)
	for _, e := range f.events {
		counts[e.Status]++
	}
	return counts
}

type countingBroker struct {
	mu        sync.Mutex
	published map[string]int
	fail      bool
}

func newCountingBroker() *countingBroker {
	return &countingBroker{published: make(map[string]int)}
}

func (b *countingBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broker unavailable")
	}
	msg := message.(messaging.Message)
	b.published[string(msg.Payload.(json.RawMessage))]++
	return nil
}

func (b *countingBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *countingBroker) Close() error { return nil }

func newTestProcessor(repo *fakeOutboxRepo, broker *countingBroker, m *metrics.Metrics) *OutboxProcessor {
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, TimeFormat: time.RFC3339, Output: io.Discard})
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     5,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, log, m)
}

func seedEvents(repo *fakeOutboxRepo, n int) {
	for i := 0; i < n; i++ {
		repo.events = append(repo.events, &model.OutboxEvent{
			ID:        uuid.New(),
			EventType: model.EventBookingCommitted,
			Payload:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			Status:    model.OutboxStatusPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		})
	}
}

func TestOutboxProcessorPublishesEachEventOnce(t *testing.T) {
	repo := &fakeOutboxRepo{}
	seedEvents(repo, 20)
	broker := newCountingBroker()
	m := metrics.NewMetrics("booking_api_claimtest", "worker")

	// Two drains over the same table, racing. The claim moves rows out
	// of PENDING, so no event may be delivered twice.
	p1 := newTestProcessor(repo, broker, m)
	p2 := newTestProcessor(repo, broker, m)

	var wg sync.WaitGroup
	for _, p := range []*OutboxProcessor{p1, p2} {
		wg.Add(1)
		go func(p *OutboxProcessor) {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				_ = p.processEvents(context.Background())
			}
		}(p)
	}
	wg.Wait()

	require.Len(t, broker.published, 20, "every event must be published")
	for payload, count := range broker.published {
		assert.Equal(t, 1, count, "event %s published more than once", payload)
	}
	counts := repo.statusCounts()
	assert.Equal(t, 20, counts[model.OutboxStatusProcessed])
	assert.Zero(t, counts[model.OutboxStatusPending])
}

func TestOutboxProcessorMarksFailedOnPublishError(t *testing.T) {
	repo := &fakeOutboxRepo{}
	seedEvents(repo, 3)
	broker := newCountingBroker()
	broker.fail = true
	m := metrics.NewMetrics("booking_api_failtest", "worker")

	p := newTestProcessor(repo, broker, m)
	require.NoError(t, p.processEvents(context.Background()))

	counts := repo.statusCounts()
	assert.Equal(t, 3, counts[model.OutboxStatusFailed])
	assert.Zero(t, counts[model.OutboxStatusProcessed])
}

func TestRequeueStaleReturnsOrphanedClaims(t *testing.T) {
	repo := &fakeOutboxRepo{}
	seedEvents(repo, 2)

	claimed, err := repo.GetPendingEvents(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	requeued, err := repo.RequeueStale(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), requeued)
	assert.Equal(t, 2, repo.statusCounts()[model.OutboxStatusPending])
}
