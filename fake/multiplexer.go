// File: fake/multiplexer.go
// Author: momentics <momentics@gmail.com>
//
// Fake multiplexer recording every delivered header.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
)

// Received is one delivered event, copied at delivery time.
type Received struct {
	LinkID uint32
	Origin api.Origin
	Header protocol.Header
}

// Multiplexer records deliveries and hands each event to Release, which
// tests usually point at Registry.DestroyEvent.
type Multiplexer struct {
	mu       sync.Mutex
	received []Received
	err      error
	notify   chan struct{}
	release  func(*pool.Event)
}

// NewMultiplexer creates a multiplexer that accepts every event.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{notify: make(chan struct{})}
}

// SetRelease sets the function accepted events are handed to.
func (m *Multiplexer) SetRelease(fn func(*pool.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release = fn
}

// SetError makes DeliverReceived refuse events with err. nil accepts again.
func (m *Multiplexer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// DeliverReceived records ev.
func (m *Multiplexer) DeliverReceived(ev *pool.Event) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.received = append(m.received, Received{LinkID: ev.LinkID, Origin: ev.Origin, Header: ev.Header})
	release := m.release
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()

	if release != nil {
		release(ev)
	}
	return nil
}

// Received returns every recorded delivery.
func (m *Multiplexer) Received() []Received {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Received, len(m.received))
	copy(out, m.received)
	return out
}

// WaitFor blocks until at least n events were delivered or timeout elapses.
func (m *Multiplexer) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		got, wake := len(m.received), m.notify
		m.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-wake:
		case <-deadline.C:
			return false
		}
	}
}
