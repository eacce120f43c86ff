// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import "sync"

// DeterministicClock is an edb.Clock with a fixed stride.
//
// Unlike edb.LogicalClock, DeterministicClock can be reset for test reuse.
// This enables the same scenario to run multiple times with identical
// commit timestamps.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	seq  int64
	step int64
}

// NewDeterministicClock creates a clock starting at 0 with stride 1.
//
// The first call to Next(0) returns 1.
func NewDeterministicClock() *DeterministicClock {
	return NewSteppedClock(1)
}

// NewSteppedClock creates a clock that advances by step per commit.
// A step of 1000 makes timestamps look like whole seconds in milliseconds.
func NewSteppedClock(step int64) *DeterministicClock {
	if step < 1 {
		step = 1
	}
	return &DeterministicClock{step: step}
}

// Next returns the next timestamp, always greater than last.
func (c *DeterministicClock) Next(last int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.seq + c.step
	if next <= last {
		next = last + 1
	}
	c.seq = next
	return next
}

// Current returns the last timestamp handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
