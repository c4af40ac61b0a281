// File: fake/transport.go
// Author: momentics <momentics@gmail.com>
//
// Fake api.Transport. Writes are recorded per call; reads are served from
// per-device byte streams fed with Inject.

package fake

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/xlinkd/api"
)

// Ensure compile-time interface compliance.
var _ api.Transport = (*Transport)(nil)

// Write is one recorded transport write.
type Write struct {
	Device    uint32
	Interface api.Interface
	Data      []byte
	Timeout   time.Duration
}

// Transport is a fake implementation of api.Transport for testing.
type Transport struct {
	mu        sync.Mutex
	writes    []Write
	streams   map[uint32][]byte
	notify    chan struct{}
	closed    bool
	writeErr  error
	readErr   error
	shortBy   int
	gate      chan struct{}
	delay     time.Duration
	inflight  map[uint32]int
	overlaps  int
	readCalls int
}

// NewTransport creates a new fake transport with default settings.
func NewTransport() *Transport {
	return &Transport{
		streams:  make(map[uint32][]byte),
		notify:   make(chan struct{}),
		inflight: make(map[uint32]int),
	}
}

// ResolveInterface implements api.Transport.
func (t *Transport) ResolveInterface(swDeviceID uint32) api.Interface {
	return api.InterfaceOf(swDeviceID)
}

// Write implements api.Transport.Write.
func (t *Transport) Write(ctx context.Context, iface api.Interface, swDeviceID uint32, buf []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, api.ErrTransportClosed
	}
	t.inflight[swDeviceID]++
	if t.inflight[swDeviceID] > 1 {
		t.overlaps++
	}
	gate, delay := t.gate, t.delay
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inflight[swDeviceID]--
		t.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	n := len(buf)
	if t.shortBy > 0 && n > 0 {
		n -= min(t.shortBy, n)
	}
	t.writes = append(t.writes, Write{
		Device:    swDeviceID,
		Interface: iface,
		Data:      append([]byte(nil), buf[:n]...),
		Timeout:   timeout,
	})
	return n, nil
}

// Read implements api.Transport.Read. It returns whatever is buffered for
// the device, up to len(buf), waiting up to timeout for data.
func (t *Transport) Read(ctx context.Context, _ api.Interface, swDeviceID uint32, buf []byte, timeout time.Duration) (int, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		t.mu.Lock()
		t.readCalls++
		if t.closed {
			t.mu.Unlock()
			return 0, api.ErrTransportClosed
		}
		if t.readErr != nil {
			err := t.readErr
			t.mu.Unlock()
			return 0, err
		}
		if pending := t.streams[swDeviceID]; len(pending) > 0 {
			n := copy(buf, pending)
			t.streams[swDeviceID] = pending[n:]
			t.mu.Unlock()
			return n, nil
		}
		wake := t.notify
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-deadline:
			return 0, api.ErrTimeout
		case <-wake:
		}
	}
}

// Inject appends data to the device's inbound stream.
func (t *Transport) Inject(swDeviceID uint32, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.streams[swDeviceID] = append(t.streams[swDeviceID], data...)
	close(t.notify)
	t.notify = make(chan struct{})
}

// Close makes every later call fail with api.ErrTransportClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.notify)
	}
	return nil
}

// SetWriteError configures the transport to fail every Write with err.
func (t *Transport) SetWriteError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// SetReadError configures the transport to fail every Read with err.
func (t *Transport) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
}

// SetShortWrite makes every Write report n bytes fewer than requested.
func (t *Transport) SetShortWrite(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shortBy = n
}

// SetWriteDelay makes every Write take at least d.
func (t *Transport) SetWriteDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
}

// BlockWrites holds every Write until the returned release function is
// called.
func (t *Transport) BlockWrites() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.gate = nil
			t.mu.Unlock()
			close(gate)
		})
	}
}

// Writes returns all recorded writes in order.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Write, len(t.writes))
	copy(out, t.writes)
	return out
}

// WriteCount returns the number of recorded writes.
func (t *Transport) WriteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

// Sent returns the concatenated bytes written to one device.
func (t *Transport) Sent(swDeviceID uint32) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []byte
	for _, w := range t.writes {
		if w.Device == swDeviceID {
			out = append(out, w.Data...)
		}
	}
	return out
}

// ClearWrites drops the recorded writes.
func (t *Transport) ClearWrites() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = t.writes[:0]
}

// Overlaps returns how many writes started while another write to the
// same device was in progress.
func (t *Transport) Overlaps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlaps
}

// ReadCalls returns the number of Read loop iterations served.
func (t *Transport) ReadCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readCalls
}
