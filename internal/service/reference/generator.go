package reference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
	"github.com/jwalitptl/booking-api/pkg/retry"
)

// Prefixes for the entities that carry a human-readable reference.
const (
	PrefixBooking      = "BOOK"
	PrefixPrescription = "RX"
)

// Generator produces references of the form
//
//	PREFIX-YYMMDD-XXXXXX-NNNN
//
// where XXXXXX is the last six hex characters of the entity id and NNNN
// the last four digits of the generation timestamp in milliseconds.
// Two generations inside the same millisecond would otherwise collide,
// so a serialized counter nudges the suffix until the clock moves on.
type Generator struct {
	clock       clock.Clock
	maxAttempts int
	onRetry     func(attempt int)

	mu         sync.Mutex
	lastMillis int64
	seq        int64
}

func NewGenerator(clk clock.Clock, maxAttempts int) *Generator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Generator{clock: clk, maxAttempts: maxAttempts}
}

// WithRetryHook registers a callback invoked once per retried attempt,
// with the attempt number. Used to count duplicate collisions.
func (g *Generator) WithRetryHook(fn func(attempt int)) *Generator {
	g.onRetry = fn
	return g
}

// Generate builds the next reference candidate for the entity. The same
// entity can receive different candidates across calls; only the suffix
// varies within a day.
func (g *Generator) Generate(prefix string, entityID uuid.UUID) string {
	now := g.clock.Now()
	millis := now.UnixMilli()

	g.mu.Lock()
	if millis == g.lastMillis {
		g.seq++
	} else {
		g.lastMillis = millis
		g.seq = 0
	}
	suffix := (millis + g.seq) % 10000
	g.mu.Unlock()

	id := strings.ReplaceAll(entityID.String(), "-", "")
	return fmt.Sprintf("%s-%s-%s-%04d",
		prefix,
		now.Format("060102"),
		strings.ToUpper(id[len(id)-6:]),
		suffix,
	)
}

// Assign generates candidates and hands each to persist until one
// sticks. Only a duplicate-reference collision earns another attempt;
// any other persistence failure surfaces immediately. When every
// attempt collides the wrapped ErrAttemptsExhausted comes back and the
// caller must roll back whatever row is waiting for the reference.
func (g *Generator) Assign(ctx context.Context, prefix string, entityID uuid.UUID, persist func(reference string) error) (string, error) {
	var assigned string
	err := retry.Do(ctx, g.maxAttempts, isDuplicate, func(attempt int) error {
		if attempt > 1 && g.onRetry != nil {
			g.onRetry(attempt)
		}
		candidate := g.Generate(prefix, entityID)
		if err := persist(candidate); err != nil {
			return err
		}
		assigned = candidate
		return nil
	})
	if err != nil {
		return "", err
	}
	return assigned, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, repository.ErrDuplicateReference)
}
