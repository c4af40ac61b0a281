// File: pool/eventpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventPool is a fixed-capacity free-list of pre-allocated events for one
// link. Acquire never allocates; an empty pool is reported as
// api.ErrPoolExhausted so callers can back off.

package pool

import (
	"sync/atomic"

	"github.com/momentics/xlinkd/api"
)

// DefaultEventPoolCapacity is the per-link pool size used when none is configured.
const DefaultEventPoolCapacity = 1024

// EventPool owns the events of one link.
type EventPool struct {
	linkID   uint32
	capacity int
	free     *EventQueue
	slab     []Event
	drained  atomic.Bool
	leaked   atomic.Int64
}

// NewEventPool pre-allocates capacity events for linkID and pushes them all
// onto the free-list.
func NewEventPool(linkID uint32, capacity int) *EventPool {
	if capacity <= 0 {
		capacity = DefaultEventPoolCapacity
	}
	p := &EventPool{
		linkID:   linkID,
		capacity: capacity,
		free:     NewEventQueue(capacity),
		slab:     make([]Event, capacity),
	}
	for i := range p.slab {
		p.slab[i].LinkID = linkID
		p.free.Enqueue(&p.slab[i])
	}
	return p
}

// Acquire pops a free event. Fields are not re-initialized except the
// payload bookkeeping; the caller stamps everything else.
func (p *EventPool) Acquire() (*Event, error) {
	if p.drained.Load() {
		return nil, api.ErrPoolExhausted
	}
	ev, ok := p.free.Dequeue()
	if !ok {
		return nil, api.ErrPoolExhausted
	}
	ev.reset()
	return ev, nil
}

// Release pushes ev back onto the free-list. Contents are not validated.
// Events released after Drain are counted and discarded.
func (p *EventPool) Release(ev *Event) {
	if ev == nil {
		return
	}
	if p.drained.Load() {
		p.leaked.Add(1)
		return
	}
	p.free.Enqueue(ev)
}

// Available returns the number of events currently on the free-list.
func (p *EventPool) Available() int {
	return p.free.Len()
}

// Capacity returns the number of events the pool was built with.
func (p *EventPool) Capacity() int {
	return p.capacity
}

// LinkID returns the link the pool belongs to.
func (p *EventPool) LinkID() uint32 {
	return p.linkID
}

// Drain frees every pooled event exactly once and returns how many were
// freed. Later calls return 0. Events still in flight are not counted.
func (p *EventPool) Drain() int {
	if !p.drained.CompareAndSwap(false, true) {
		return 0
	}
	n := 0
	for {
		if _, ok := p.free.Dequeue(); !ok {
			break
		}
		n++
	}
	p.slab = nil
	return n
}

// LateReleases returns how many events were released after Drain.
func (p *EventPool) LateReleases() int64 {
	return p.leaked.Load()
}
