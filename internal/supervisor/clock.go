package supervisor

import (
	"sync"
	"time"
)

// Clock provides time operations. This interface enables deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the actual system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// TestClock implements Clock with a manually advanced time for testing.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestClock returns a clock fixed at start.
func NewTestClock(start time.Time) *TestClock {
	return &TestClock{now: start}
}

// Now returns the current fixed time.
func (t *TestClock) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// Advance moves the clock forward by d.
func (t *TestClock) Advance(d time.Duration) {
	t.mu.Lock()
	t.now = t.now.Add(d)
	t.mu.Unlock()
}
