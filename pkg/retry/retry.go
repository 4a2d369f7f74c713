package retry

import (
	"context"
	"fmt"
)

// ErrAttemptsExhausted is returned when every attempt failed with a
// retryable error.
var ErrAttemptsExhausted = fmt.Errorf("retry attempts exhausted")

// Retryable decides whether an error is worth another attempt.
// Returning false stops the loop and surfaces the error as-is.
type Retryable func(error) bool

// Do runs fn up to maxAttempts times, passing the 1-based attempt
// number. Non-retryable errors and context cancellation short-circuit.
// When all attempts fail retryably, the last error is wrapped in
// ErrAttemptsExhausted.
func Do(ctx context.Context, maxAttempts int, retryable Retryable, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, maxAttempts, lastErr)
}
