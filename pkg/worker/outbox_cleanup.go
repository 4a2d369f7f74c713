package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// Claimed events untouched this long are assumed orphaned by a dead
// worker and returned to the queue.
const staleClaimAge = 10 * time.Minute

// OutboxCleanupWorker prunes processed outbox rows past the retention
// window so the table stays small enough for the claim scans, and
// requeues claims orphaned by crashed workers.
type OutboxCleanupWorker struct {
	repo          repository.OutboxRepository
	retentionDays int
	interval      time.Duration
	logger        *logger.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retentionDays int, interval time.Duration, log *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:          repo,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        log,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requeued, err := w.repo.RequeueStale(ctx, time.Now().Add(-staleClaimAge))
			if err != nil {
				w.logger.Error(err, "outbox stale requeue failed")
			} else if requeued > 0 {
				w.logger.Warn("requeued orphaned outbox claims", "requeued", requeued)
			}

			cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
			deleted, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
			if err != nil {
				w.logger.Error(err, "outbox cleanup failed")
				continue
			}
			if deleted > 0 {
				w.logger.Info("pruned processed outbox events", "deleted", deleted)
			}
		}
	}
}
