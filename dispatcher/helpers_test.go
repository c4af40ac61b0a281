package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/fake"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
)

const (
	testDevice   = 0x0100_0002 // PCIe device 2
	testPoolSize = 16
)

var testHandle = &api.Handle{DeviceName: "pcie-2", SWDeviceID: testDevice}

func testConfig() control.Config {
	cfg := control.Default()
	cfg.MaxLinks = 4
	cfg.PoolCapacity = testPoolSize
	cfg.EventQueueCapacity = 32
	cfg.IPCQueueCapacity = 100
	cfg.RxPollInterval = 2 * time.Millisecond
	cfg.JoinTimeout = time.Second
	return cfg
}

type env struct {
	r     *Registry
	tr    *fake.Transport
	alloc *fake.Allocator
	mux   *fake.Multiplexer
}

func newEnv(t *testing.T, mutate func(*control.Config), opts ...Option) *env {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e := &env{tr: fake.NewTransport(), alloc: fake.NewAllocator(), mux: fake.NewMultiplexer()}
	all := append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	r, err := Init(cfg, e.tr, e.alloc, e.mux, all...)
	require.NoError(t, err)
	e.mux.SetRelease(r.DestroyEvent)
	e.r = r
	t.Cleanup(func() {
		if !r.destroyed.Load() {
			_ = r.Destroy()
		}
	})
	return e
}

// writeEvent creates a WRITE event on link 0 carrying payload.
func (e *env) writeEvent(t *testing.T, channel uint16, payload []byte) *pool.Event {
	t.Helper()
	ev, err := e.r.CreateEvent(0, protocol.WriteReq, testHandle, channel, uint32(len(payload)), 0)
	require.NoError(t, err)
	ev.SetPayload(payload, 0, false)
	return ev
}

// ownedWriteEvent creates a WRITE event whose payload comes from the allocator.
func (e *env) ownedWriteEvent(t *testing.T, kind api.MemoryKind, payload []byte) *pool.Event {
	t.Helper()
	buf, phys, err := e.alloc.Allocate(len(payload), protocol.PacketAlignment, kind)
	require.NoError(t, err)
	copy(buf, payload)
	ev, err := e.r.CreateEvent(0, protocol.WriteReq, testHandle, 1, uint32(len(payload)), 0)
	require.NoError(t, err)
	ev.SetPayload(buf, phys, true)
	return ev
}

func encodeHeader(t *testing.T, h protocol.Header) []byte {
	t.Helper()
	buf := make([]byte, protocol.MaxHeaderSize)
	n, err := h.Encode(buf)
	require.NoError(t, err)
	return buf[:n]
}

func decodeHeader(t *testing.T, b []byte) protocol.Header {
	t.Helper()
	var h protocol.Header
	require.NoError(t, h.Decode(b))
	return h
}

// mockMux is a testify multiplexer for call-level expectations.
type mockMux struct {
	mock.Mock
}

func (m *mockMux) DeliverReceived(ev *pool.Event) error {
	return m.Called(ev).Error(0)
}
