// File: transport/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listener accepts stream connections for one device and attaches each to a
// ConnTransport, replacing the previous peer. Dial is the client side.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// ListenerConfig holds configuration for a device listener.
type ListenerConfig struct {
	Network    string // "tcp" or "unix"
	Addr       string // address to bind, e.g. ":5678"
	SWDeviceID uint32 // device the accepted peer is attached as
	Transport  *ConnTransport
	Logger     *zap.Logger
	// OnAttach is called after a peer has been attached. Optional.
	OnAttach func(conn net.Conn)
}

// Listener is a bound device listener.
type Listener struct {
	cfg ListenerConfig
	ln  net.Listener
	log *zap.Logger
}

// Listen binds the configured address.
func Listen(cfg ListenerConfig) (*Listener, error) {
	if cfg.Transport == nil {
		return nil, errors.New("listener: nil transport")
	}
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	ln, err := net.Listen(cfg.Network, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%s listen failed: %w", cfg.Network, err)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		cfg: cfg,
		ln:  ln,
		log: log.With(zap.String("addr", ln.Addr().String()), zap.Uint32("device", cfg.SWDeviceID)),
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener fails.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()
	l.log.Info("listening")
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.log.Warn("accept timeout", zap.Error(err))
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if err := l.cfg.Transport.Attach(l.cfg.SWDeviceID, conn); err != nil {
			l.log.Warn("attach failed", zap.Error(err))
			_ = conn.Close()
			continue
		}
		l.log.Info("peer attached", zap.Stringer("remote", conn.RemoteAddr()))
		if l.cfg.OnAttach != nil {
			l.cfg.OnAttach(conn)
		}
	}
}

// Close releases the listening socket.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial connects to addr and attaches the connection as swDeviceID.
func Dial(ctx context.Context, t *ConnTransport, network, addr string, swDeviceID uint32) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, addr, err)
	}
	if err := t.Attach(swDeviceID, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
