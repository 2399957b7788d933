// Package testutil holds shared test fixtures: a recording timer adapter
// and machine definitions exercised across packages.
package testutil

import (
	"sync"
	"time"
)

// RecordingClock is a timer adapter for tests. It records arm and cancel
// notifications so assertions can check the engine's timer bookkeeping;
// time itself only moves through Engine.Tick.
type RecordingClock struct {
	mu       sync.Mutex
	now      time.Time
	started  []TimerEvent
	canceled []int
}

// TimerEvent is one recorded Start notification.
type TimerEvent struct {
	Handle   int
	Duration time.Duration
}

// NewRecordingClock creates a clock at the zero time.
func NewRecordingClock() *RecordingClock {
	return &RecordingClock{}
}

func (c *RecordingClock) Start(d time.Duration, handle int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, TimerEvent{Handle: handle, Duration: d})
}

func (c *RecordingClock) Cancel(handle int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = append(c.canceled, handle)
}

func (c *RecordingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the reported wall time. Purely cosmetic: ordering always
// comes from the logical clock.
func (c *RecordingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Started returns the recorded Start notifications in order.
func (c *RecordingClock) Started() []TimerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TimerEvent, len(c.started))
	copy(out, c.started)
	return out
}

// Canceled returns the recorded Cancel handles in order.
func (c *RecordingClock) Canceled() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.canceled))
	copy(out, c.canceled)
	return out
}
