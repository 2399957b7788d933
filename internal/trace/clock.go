package trace

import "sync/atomic"

// Clock is the monotonic logical clock stamping trace steps.
//
// Every processed queue item gets a strictly increasing seq number, so a
// replayed run and the original produce identical orderings with no
// wall-clock involvement. Safe for concurrent use, though the engine's
// single-dispatcher design means one goroutine calls Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known position, used when
// continuing a stored run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
