// File: transport/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ConnTransport implements api.Transport over stream connections, one per
// software device id. Any net.Conn works: TCP for Ethernet links, net.Pipe
// for in-process loopback, unix sockets for local hosts.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/momentics/xlinkd/api"
)

// Ensure compile-time interface compliance.
var _ api.Transport = (*ConnTransport)(nil)

// deviceConn serializes readers and writers of one connection separately,
// so a blocked header read never stalls a send.
type deviceConn struct {
	conn net.Conn
	rmu  sync.Mutex
	wmu  sync.Mutex
}

// ConnTransport maps software device ids to attached connections.
type ConnTransport struct {
	mu      sync.RWMutex
	devices map[uint32]*deviceConn
	closed  bool
}

// NewConnTransport creates a transport with no devices attached.
func NewConnTransport() *ConnTransport {
	return &ConnTransport{devices: make(map[uint32]*deviceConn)}
}

// Attach binds conn to swDeviceID. A previously attached connection is
// closed and replaced.
func (t *ConnTransport) Attach(swDeviceID uint32, conn net.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	if old, ok := t.devices[swDeviceID]; ok {
		_ = old.conn.Close()
	}
	t.devices[swDeviceID] = &deviceConn{conn: conn}
	return nil
}

// Detach closes and forgets the connection of swDeviceID.
func (t *ConnTransport) Detach(swDeviceID uint32) error {
	t.mu.Lock()
	dc, ok := t.devices[swDeviceID]
	delete(t.devices, swDeviceID)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return dc.conn.Close()
}

// Devices returns the number of attached devices.
func (t *ConnTransport) Devices() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

func (t *ConnTransport) lookup(swDeviceID uint32) (*deviceConn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, api.ErrTransportClosed
	}
	dc, ok := t.devices[swDeviceID]
	if !ok {
		return nil, fmt.Errorf("%w: no connection for device 0x%x", api.ErrInvalidArgument, swDeviceID)
	}
	return dc, nil
}

// ResolveInterface implements api.Transport.
func (t *ConnTransport) ResolveInterface(swDeviceID uint32) api.Interface {
	return api.InterfaceOf(swDeviceID)
}

// Write sends buf in full. A positive timeout bounds the whole write.
func (t *ConnTransport) Write(ctx context.Context, _ api.Interface, swDeviceID uint32, buf []byte, timeout time.Duration) (int, error) {
	dc, err := t.lookup(swDeviceID)
	if err != nil {
		return 0, err
	}
	dc.wmu.Lock()
	defer dc.wmu.Unlock()

	_ = dc.conn.SetWriteDeadline(deadline(timeout))
	stop := context.AfterFunc(ctx, func() { _ = dc.conn.SetWriteDeadline(time.Unix(1, 0)) })
	defer stop()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := dc.conn.Write(buf)
	if err != nil {
		return n, t.mapErr(ctx, err)
	}
	return n, nil
}

// Read fills buf exactly. The timeout bounds only the wait for the first
// byte. A transfer that has started is read to completion.
func (t *ConnTransport) Read(ctx context.Context, _ api.Interface, swDeviceID uint32, buf []byte, timeout time.Duration) (int, error) {
	dc, err := t.lookup(swDeviceID)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	dc.rmu.Lock()
	defer dc.rmu.Unlock()

	_ = dc.conn.SetReadDeadline(deadline(timeout))
	stop := context.AfterFunc(ctx, func() { _ = dc.conn.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := dc.conn.Read(buf)
	if timeout > 0 && ctx.Err() == nil {
		_ = dc.conn.SetReadDeadline(time.Time{})
	}
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return 0, t.mapErr(ctx, err)
	}
	if n < len(buf) {
		m, err := io.ReadFull(dc.conn, buf[n:])
		n += m
		if err != nil {
			return n, fmt.Errorf("%w: %d of %d bytes: %w", api.ErrShortTransfer, n, len(buf), t.mapErr(ctx, err))
		}
	}
	return n, nil
}

// deadline converts a relative timeout to a connection deadline; zero
// clears any deadline left by an earlier call.
func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func (t *ConnTransport) mapErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return api.ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return api.ErrTimeout
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", api.ErrTransportClosed, err)
	}
	return err
}

// Close detaches and closes every connection.
func (t *ConnTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var errs []error
	for id, dc := range t.devices {
		if err := dc.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		delete(t.devices, id)
	}
	return errors.Join(errs...)
}
