package clock

import "time"

// Clock abstracts time.Now so schedulers and generators can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

// Fixed is a Clock pinned to a settable instant.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }

// NewFixed returns a Fixed clock starting at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{T: t} }
