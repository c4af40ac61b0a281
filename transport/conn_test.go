package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/transport"
)

const devID = 0x0300_0001

func pipeTransport(t *testing.T) (*transport.ConnTransport, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	tr := transport.NewConnTransport()
	require.NoError(t, tr.Attach(devID, local))
	t.Cleanup(func() {
		_ = tr.Close()
		_ = remote.Close()
	})
	return tr, remote
}

func TestConnTransportWrite(t *testing.T) {
	tr, remote := pipeTransport(t)
	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		n, _ := remote.Read(buf)
		got <- buf[:n]
	}()
	n, err := tr.Write(context.Background(), api.InterfaceEthernet, devID, []byte{1, 2, 3, 4}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, <-got)
}

func TestConnTransportReadCompletesSplitTransfer(t *testing.T) {
	tr, remote := pipeTransport(t)
	go func() {
		_, _ = remote.Write([]byte{1, 2})
		time.Sleep(20 * time.Millisecond)
		_, _ = remote.Write([]byte{3, 4, 5})
	}()
	buf := make([]byte, 5)
	n, err := tr.Read(context.Background(), api.InterfaceEthernet, devID, buf, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf)
}

func TestConnTransportReadTimeout(t *testing.T) {
	tr, _ := pipeTransport(t)
	buf := make([]byte, 4)
	_, err := tr.Read(context.Background(), api.InterfaceEthernet, devID, buf, 5*time.Millisecond)
	assert.ErrorIs(t, err, api.ErrTimeout)

	// a timed-out read leaves the connection usable
	_, err = tr.Read(context.Background(), api.InterfaceEthernet, devID, buf, 5*time.Millisecond)
	assert.ErrorIs(t, err, api.ErrTimeout)
}

func TestConnTransportReadCancel(t *testing.T) {
	tr, _ := pipeTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := tr.Read(ctx, api.InterfaceEthernet, devID, make([]byte, 4), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnTransportUnknownDeviceAndClose(t *testing.T) {
	tr, remote := pipeTransport(t)
	_, err := tr.Write(context.Background(), api.InterfaceEthernet, 99, []byte{1}, 0)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_ = remote.Close()
	_, err = tr.Read(context.Background(), api.InterfaceEthernet, devID, make([]byte, 1), time.Second)
	assert.ErrorIs(t, err, api.ErrTransportClosed)

	require.NoError(t, tr.Close())
	_, err = tr.Write(context.Background(), api.InterfaceEthernet, devID, []byte{1}, 0)
	assert.ErrorIs(t, err, api.ErrTransportClosed)
	assert.Zero(t, tr.Devices())
}

func TestResolveInterface(t *testing.T) {
	tr := transport.NewConnTransport()
	assert.Equal(t, api.InterfaceEthernet, tr.ResolveInterface(devID))
	assert.Equal(t, api.InterfacePCIe, tr.ResolveInterface(api.MakeSWDeviceID(api.InterfacePCIe, 2)))
}

func TestListenerAttachesPeer(t *testing.T) {
	tr := transport.NewConnTransport()
	defer tr.Close()
	attached := make(chan struct{}, 1)
	ln, err := transport.Listen(transport.ListenerConfig{
		Addr:       "127.0.0.1:0",
		SWDeviceID: devID,
		Transport:  tr,
		OnAttach:   func(net.Conn) { attached <- struct{}{} },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ln.Serve(ctx) }()

	client := transport.NewConnTransport()
	defer client.Close()
	_, err = transport.Dial(ctx, client, "tcp", ln.Addr().String(), devID)
	require.NoError(t, err)

	select {
	case <-attached:
	case <-time.After(time.Second):
		t.Fatal("peer not attached")
	}
	_, err = client.Write(ctx, api.InterfaceEthernet, devID, []byte("ping"), time.Second)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = tr.Read(ctx, api.InterfaceEthernet, devID, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	cancel()
	assert.NoError(t, <-served)
}
