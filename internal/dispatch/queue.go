package dispatch

import (
	"sync"

	"github.com/roach88/strata/internal/model"
)

// Event is one event instance: an event handle plus a payload snapshot
// aligned with the event's declared payload fields. Payloads are read-only
// at use sites.
type Event struct {
	ID      model.EventID
	Payload []model.Value
}

// timerHandle indexes the engine's timer table. timerNone marks an
// ordinary (non-timer) queue item.
type timerHandle int32

const timerNone timerHandle = -1

// queued is one slot of the external queue: either an external/raised/sent
// event, or a timer delivery that stays cancellable until dequeued.
type queued struct {
	event Event
	timer timerHandle
}

// eventQueue is the bounded FIFO external event queue.
//
// Capacity is fixed at construction - a compile-time constant of the
// generated target - and backed by a ring buffer, so no allocation happens
// after init. Enqueue is the single operation required to be safe from
// another execution context (cross-instance send, timer adapters); it takes
// the mutex. Everything else runs on the instance's own dispatch thread.
type eventQueue struct {
	mu     sync.Mutex
	ring   []queued
	head   int
	count  int
	policy model.QueuePolicy
}

func newEventQueue(capacity int, policy model.QueuePolicy) *eventQueue {
	return &eventQueue{
		ring:   make([]queued, capacity),
		policy: policy,
	}
}

// Enqueue appends an item, applying the overflow policy when full.
// Thread-safe: may be called from any goroutine. The returned fault is nil
// except under the "error" and "assert" policies.
func (q *eventQueue) Enqueue(item queued) *RuntimeFault {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.ring) {
		switch q.policy {
		case model.DropOldest:
			q.head = (q.head + 1) % len(q.ring)
			q.count--
		case model.DropNewest:
			return nil
		case model.Reject:
			return newQueueOverflow(len(q.ring), false)
		case model.Assert:
			return newQueueOverflow(len(q.ring), true)
		}
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	return nil
}

// PushFront re-inserts an item at the front, used for deferral
// re-insertion. Only called from the dispatch thread, while the queue has
// room freed by the dequeue that started the current step; a full queue
// falls back to the overflow policy against the back.
func (q *eventQueue) PushFront(item queued) *RuntimeFault {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.ring) {
		switch q.policy {
		case model.DropOldest:
			// The incoming item becomes the oldest; dropping it is the
			// policy-consistent outcome.
			return nil
		case model.DropNewest:
			q.count--
		case model.Reject:
			return newQueueOverflow(len(q.ring), false)
		case model.Assert:
			return newQueueOverflow(len(q.ring), true)
		}
	}

	q.head = (q.head - 1 + len(q.ring)) % len(q.ring)
	q.ring[q.head] = item
	q.count++
	return nil
}

// TryDequeue removes and returns the front item without blocking.
func (q *eventQueue) TryDequeue() (queued, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return queued{}, false
	}
	item := q.ring[q.head]
	q.ring[q.head] = queued{} // release payload references
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return item, true
}

// Len returns the current occupancy.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *eventQueue) Cap() int {
	return len(q.ring)
}
