package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, nil, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(err error) bool { return errors.Is(err, errTransient) }, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtBound(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(error) bool { return true }, func(attempt int) error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 3, calls)
}

func TestDoNonRetryableShortCircuits(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Do(context.Background(), 5, func(err error) bool { return errors.Is(err, errTransient) }, func(attempt int) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, 3, nil, func(attempt int) error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDoAttemptNumbers(t *testing.T) {
	var seen []int
	_ = Do(context.Background(), 3, func(error) bool { return true }, func(attempt int) error {
		seen = append(seen, attempt)
		return errTransient
	})
	assert.Equal(t, []int{1, 2, 3}, seen)
}
