// File: ipc/memory.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MemoryEndpoint keeps per-channel message queues in process memory. It is
// the endpoint used when producer and bridge share an address space, and
// the reference implementation for tests.

package ipc

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/xlinkd/api"
)

// Ensure compile-time interface compliance.
var _ Endpoint = (*MemoryEndpoint)(nil)

type streamKey struct {
	channel  uint16
	volatile bool
}

// MemoryEndpoint is an in-process Endpoint.
type MemoryEndpoint struct {
	mu      sync.Mutex
	streams map[streamKey]*queue.Queue
	notify  chan struct{}
	closed  bool
}

// NewMemoryEndpoint creates an empty endpoint.
func NewMemoryEndpoint() *MemoryEndpoint {
	return &MemoryEndpoint{
		streams: make(map[streamKey]*queue.Queue),
		notify:  make(chan struct{}),
	}
}

func (m *MemoryEndpoint) push(key streamKey, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrTransportClosed
	}
	q, ok := m.streams[key]
	if !ok {
		q = queue.New()
		m.streams[key] = q
	}
	q.Add(append([]byte(nil), msg...))
	close(m.notify)
	m.notify = make(chan struct{})
	return nil
}

// Send queues a volatile data message on channel.
func (m *MemoryEndpoint) Send(channel uint16, data []byte) error {
	return m.push(streamKey{channel: channel, volatile: true}, data)
}

// SendHandle queues a handle message on channel.
func (m *MemoryEndpoint) SendHandle(channel uint16, handle uint32) error {
	return m.push(streamKey{channel: channel}, EncodeHandle(handle))
}

// Pending returns the number of queued messages on one stream.
func (m *MemoryEndpoint) Pending(channel uint16, volatile bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.streams[streamKey{channel, volatile}]; ok {
		return q.Length()
	}
	return 0
}

// Read implements Endpoint.
func (m *MemoryEndpoint) Read(ctx context.Context, _ uint32, channel uint16, buf []byte, volatile bool, timeout time.Duration) (int, error) {
	key := streamKey{channel: channel, volatile: volatile}
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, api.ErrTransportClosed
		}
		if q, ok := m.streams[key]; ok && q.Length() > 0 {
			msg := q.Remove().([]byte)
			m.mu.Unlock()
			return copy(buf, msg), nil
		}
		wake := m.notify
		m.mu.Unlock()

		if deadline == nil {
			return 0, api.ErrNoData
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline:
			return 0, api.ErrNoData
		case <-wake:
		}
	}
}

// Close wakes pending readers and rejects further traffic.
func (m *MemoryEndpoint) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.notify)
	}
	return nil
}
