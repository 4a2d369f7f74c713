package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type outboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	now := time.Now()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = now
	event.UpdatedAt = now

	if _, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// GetPendingEvents claims a batch: the status flips to PROCESSING in
// the same statement that selects the rows, so a concurrent worker's
// poll skips them instead of publishing them a second time. Rows stuck
// in PROCESSING after a worker crash are requeued by RequeueStale.
func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, payload, status, error_message,
		          created_at, processed_at, updated_at
	`
	var events []*model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, model.OutboxStatusProcessing, model.OutboxStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}
	return events, nil
}

// RequeueStale returns PROCESSING rows not touched since the cutoff to
// PENDING. Their worker died mid-batch; delivery stays at-least-once.
func (r *outboxRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3
	`
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusPending, model.OutboxStatusProcessing, before)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale events: %w", err)
	}
	return result.RowsAffected()
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMessage *string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, error_message = $2, processed_at = $3, updated_at = $3
		WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, status, errMessage, time.Now(), id); err != nil {
		return fmt.Errorf("failed to update outbox event status: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = $1 AND processed_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, model.OutboxStatusProcessed, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return result.RowsAffected()
}
