// File: pool/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventQueue is a mutex-protected FIFO of events backed by a ring-buffer
// queue. It serves both as a buffer pool free-list and as a pending-send
// queue. Admission control is chosen per call: Enqueue never refuses,
// EnqueueBounded stops at capacity, EnqueueAdmitted stops at the soft
// backpressure threshold.

package pool

import (
	"sync"

	"github.com/eapache/queue"
)

// AdmissionPercent is the occupancy, in percent of capacity, at which
// EnqueueAdmitted starts refusing events.
const AdmissionPercent = 70

// EventQueue is a FIFO of *Event. All methods are safe for concurrent use;
// the lock is held only for the splice itself.
type EventQueue struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int
}

// NewEventQueue creates an empty queue with the given nominal capacity.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{
		items:    queue.New(),
		capacity: capacity,
	}
}

// Enqueue appends ev at the tail unconditionally.
func (q *EventQueue) Enqueue(ev *Event) {
	q.mu.Lock()
	q.items.Add(ev)
	q.mu.Unlock()
}

// EnqueueBounded appends ev unless the queue already holds capacity events.
func (q *EventQueue) EnqueueBounded(ev *Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() >= q.capacity {
		return false
	}
	q.items.Add(ev)
	return true
}

// EnqueueAdmitted appends ev only while occupancy is below the admission
// threshold.
func (q *EventQueue) EnqueueAdmitted(ev *Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() >= q.AdmissionLimit() {
		return false
	}
	q.items.Add(ev)
	return true
}

// Dequeue pops the head event; ok is false when the queue is empty.
// Never blocks.
func (q *EventQueue) Dequeue() (ev *Event, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Length() == 0 {
		return nil, false
	}
	return q.items.Remove().(*Event), true
}

// Len returns the current number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Cap returns the nominal capacity.
func (q *EventQueue) Cap() int {
	return q.capacity
}

// AdmissionLimit returns the occupancy at which EnqueueAdmitted refuses:
// (capacity/10)*7, matching the integer arithmetic peers rely on.
func (q *EventQueue) AdmissionLimit() int {
	return (q.capacity / 10) * (AdmissionPercent / 10)
}
