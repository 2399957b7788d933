package dispatch

import (
	"time"
)

// Clock is the timer/clock adapter boundary. The engine notifies the
// adapter when timers arm and cancel so a real deployment can schedule
// wakeups; expiry itself is always driven through Engine.Tick, which keeps
// the reference interpreter and generated code bit-for-bit identical under
// a virtual clock.
type Clock interface {
	// Start announces that a timer handle was armed for the duration.
	Start(d time.Duration, handle int)
	// Cancel announces that a timer handle was disarmed.
	Cancel(handle int)
	// Now returns the adapter's current time, used for trace timestamps
	// only - never for ordering decisions.
	Now() time.Time
}

// nopClock is the default adapter for purely Tick-driven use.
type nopClock struct{}

func (nopClock) Start(time.Duration, int) {}
func (nopClock) Cancel(int)               {}
func (nopClock) Now() time.Time           { return time.Time{} }

// timerEntry is one slot of the fixed-size timer table. The table holds
// exactly one slot per timed transition in the model, sized at engine
// construction.
type timerEntry struct {
	owner       int32 // owning state, as model.StateID
	transition  int32 // the after/every transition, as model.TransitionID
	remainingMs int64
	periodMs    int64 // 0 for one-shot
	armed       bool

	// pending is set when the timer expired and its delivery sits in the
	// queue. The entry stays cancellable until the delivery is dequeued:
	// exit of the owner flips cancelled and the delivery is discarded.
	pending   bool
	cancelled bool
}

// timerTable owns the fixed timer slots. Single-threaded: only the
// dispatch thread touches it (Tick and dispatch run on the same logical
// thread per the run-to-completion model).
type timerTable struct {
	entries []timerEntry
	// byTransition maps a timed transition to its slot, fixed at build.
	byTransition map[int32]int
}

func newTimerTable() *timerTable {
	return &timerTable{byTransition: make(map[int32]int)}
}

// addSlot registers one timed transition at build time.
func (t *timerTable) addSlot(owner, transition int32, delayMs, periodMs int64) int {
	idx := len(t.entries)
	t.entries = append(t.entries, timerEntry{
		owner:       owner,
		transition:  transition,
		remainingMs: delayMs,
		periodMs:    periodMs,
	})
	t.byTransition[transition] = idx
	return idx
}

// arm resets and activates the slot for a timed transition.
func (t *timerTable) arm(transition int32, delayMs int64) int {
	idx := t.byTransition[transition]
	e := &t.entries[idx]
	e.remainingMs = delayMs
	e.armed = true
	e.pending = false
	e.cancelled = false
	return idx
}

// cancel disarms the slot. A pending (expired, undelivered) timer is
// marked cancelled so its queued delivery is discarded at dequeue - this
// is the race-free guarantee: cancellation wins until the event is
// actually dequeued.
func (t *timerTable) cancel(transition int32) (int, bool) {
	idx, ok := t.byTransition[transition]
	if !ok {
		return 0, false
	}
	e := &t.entries[idx]
	wasLive := e.armed || e.pending
	e.armed = false
	if e.pending {
		e.cancelled = true
	}
	return idx, wasLive
}

// advance moves time forward and returns the slots that expired, in table
// order (table order follows transition declaration order, so expiry
// ordering is deterministic).
func (t *timerTable) advance(elapsedMs int64) []int {
	var expired []int
	for i := range t.entries {
		e := &t.entries[i]
		if !e.armed {
			continue
		}
		e.remainingMs -= elapsedMs
		if e.remainingMs > 0 {
			continue
		}
		e.pending = true
		e.cancelled = false
		expired = append(expired, i)
		if e.periodMs > 0 {
			e.remainingMs += e.periodMs
			if e.remainingMs <= 0 {
				// Coarse ticks may cover several periods; deliver once per
				// Tick and realign.
				e.remainingMs = e.periodMs
			}
		} else {
			e.armed = false
		}
	}
	return expired
}

// deliverable consumes a dequeued delivery, reporting whether it should
// still fire.
func (t *timerTable) deliverable(handle timerHandle) bool {
	e := &t.entries[handle]
	live := e.pending && !e.cancelled
	e.pending = false
	e.cancelled = false
	return live
}
