package edb

import (
	"sync/atomic"
	"time"
)

// Clock assigns commit timestamps.
//
// Next is called only inside the commit critical section with the newest
// stored timestamp and must return a value strictly greater than last.
type Clock interface {
	Next(last int64) int64
}

// WallClock stamps commits with Unix milliseconds. When two commits land in
// the same millisecond, or the wall clock steps back, it returns last+1 so
// timestamps stay unique and strictly increasing.
type WallClock struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Next returns max(now, last+1).
func (c WallClock) Next(last int64) int64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	ts := now().UnixMilli()
	if ts <= last {
		ts = last + 1
	}
	return ts
}

// LogicalClock stamps commits with a counter. It never depends on wall time,
// which makes replayed scenarios produce identical timestamps.
type LogicalClock struct {
	seq atomic.Int64
}

// NewLogicalClock creates a clock whose first timestamp is start+1.
func NewLogicalClock(start int64) *LogicalClock {
	c := &LogicalClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next counter value, skipping ahead past last if needed.
func (c *LogicalClock) Next(last int64) int64 {
	for {
		cur := c.seq.Load()
		next := cur + 1
		if next <= last {
			next = last + 1
		}
		if c.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Current returns the last timestamp handed out.
func (c *LogicalClock) Current() int64 {
	return c.seq.Load()
}
