// File: ipc/socket_linux.go
//go:build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SocketEndpoint carries each channel stream over an AF_UNIX SOCK_SEQPACKET
// socket pair, so message boundaries survive and the producer side can be
// handed to another process. Reads poll the consumer socket for at most the
// requested timeout and then receive without blocking.

package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/xlinkd/api"
)

// Ensure compile-time interface compliance.
var _ Endpoint = (*SocketEndpoint)(nil)

type socketPair struct {
	consumer int
	producer int
}

// SocketEndpoint is an Endpoint backed by unix socket pairs.
type SocketEndpoint struct {
	mu      sync.Mutex
	streams map[streamKey]socketPair
	closed  bool
}

// NewSocketEndpoint creates an endpoint with no open streams.
func NewSocketEndpoint() *SocketEndpoint {
	return &SocketEndpoint{streams: make(map[streamKey]socketPair)}
}

func (s *SocketEndpoint) stream(key streamKey) (socketPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return socketPair{}, api.ErrTransportClosed
	}
	if p, ok := s.streams[key]; ok {
		return p, nil
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return socketPair{}, fmt.Errorf("socketpair: %w", err)
	}
	p := socketPair{consumer: fds[0], producer: fds[1]}
	s.streams[key] = p
	return p, nil
}

// ProducerFD returns the producer socket of a stream, creating it if needed.
// The descriptor stays owned by the endpoint.
func (s *SocketEndpoint) ProducerFD(channel uint16, volatile bool) (int, error) {
	p, err := s.stream(streamKey{channel: channel, volatile: volatile})
	if err != nil {
		return -1, err
	}
	return p.producer, nil
}

func (s *SocketEndpoint) send(key streamKey, msg []byte) error {
	p, err := s.stream(key)
	if err != nil {
		return err
	}
	if _, err := unix.Write(p.producer, msg); err != nil {
		return fmt.Errorf("seqpacket write: %w", err)
	}
	return nil
}

// Send writes a volatile data message on channel.
func (s *SocketEndpoint) Send(channel uint16, data []byte) error {
	return s.send(streamKey{channel: channel, volatile: true}, data)
}

// SendHandle writes a handle message on channel.
func (s *SocketEndpoint) SendHandle(channel uint16, handle uint32) error {
	return s.send(streamKey{channel: channel}, EncodeHandle(handle))
}

// Read implements Endpoint.
func (s *SocketEndpoint) Read(ctx context.Context, _ uint32, channel uint16, buf []byte, volatile bool, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := s.stream(streamKey{channel: channel, volatile: volatile})
	if err != nil {
		return 0, err
	}
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(p.consumer), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, api.ErrNoData
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, api.ErrNoData
	}
	got, _, err := unix.Recvfrom(p.consumer, buf, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, api.ErrNoData
		}
		return 0, fmt.Errorf("seqpacket read: %w", err)
	}
	return got, nil
}

// Close closes every socket pair.
func (s *SocketEndpoint) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for key, p := range s.streams {
		if err := unix.Close(p.consumer); err != nil {
			errs = append(errs, err)
		}
		if err := unix.Close(p.producer); err != nil {
			errs = append(errs, err)
		}
		delete(s.streams, key)
	}
	return errors.Join(errs...)
}
