// File: internal/cli/run_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
)

func testRunConfig() control.Config {
	cfg := control.Default()
	cfg.MaxLinks = 2
	cfg.PoolCapacity = 8
	cfg.RxPollInterval = 2 * time.Millisecond
	return cfg
}

func TestRunLoopbackPipe(t *testing.T) {
	opts := RunOptions{Events: 20, Size: 48, Timeout: 5 * time.Second}
	s, err := runLoopback(context.Background(), testRunConfig(), opts, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "pipe", s.Transport)
	assert.Equal(t, int64(20), s.Received)
	assert.Equal(t, int64(20*48), s.PayloadBytes)
	assert.NotEqual(t, s.HostRegistry, s.DeviceRegistry)
	assert.Equal(t, map[uint32]string{0: "running", 1: "init"}, s.Host["links.state"])
}

func TestRunLoopbackTCP(t *testing.T) {
	opts := RunOptions{Events: 5, Size: 16, Listen: "127.0.0.1:0", Timeout: 5 * time.Second}
	cfg := testRunConfig()
	cfg.TxMode = control.TxModeQueued
	s, err := runLoopback(context.Background(), cfg, opts, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Contains(t, s.Transport, "tcp 127.0.0.1:")
	assert.Equal(t, int64(5), s.Received)
	assert.Equal(t, int64(5*16), s.PayloadBytes)
}

func TestRunLoopbackRejectsBadOptions(t *testing.T) {
	_, err := runLoopback(context.Background(), testRunConfig(), RunOptions{Events: 0, Size: 1}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestRunCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xlinkd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_links: 1\npool_capacity: 4\nrx_poll_interval: 2ms\nlog_level: error\n"), 0o600))

	out, err := execute(t, "--config", path, "--format", "json", "run", "--events", "3", "--size", "8")
	require.NoError(t, err)

	var s RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 3, s.Sent)
	assert.Equal(t, int64(3), s.Received)
	assert.Equal(t, int64(24), s.PayloadBytes)
}

func TestRunLoopbackLocalHost(t *testing.T) {
	opts := RunOptions{Events: 6, Size: 200, Timeout: 5 * time.Second, LocalHost: true}
	s, err := runLoopback(context.Background(), testRunConfig(), opts, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 6, s.Passthrough)
	assert.Equal(t, int64(12), s.Received)
	// writes and handle reads carry 200 bytes; scratch reads are capped at 128
	assert.Equal(t, int64(6*200+3*200+3*128), s.PayloadBytes)
	assert.Equal(t, 0, s.Host["ipc.pending"])
	assert.NotContains(t, s.Device, "ipc.pending")
}

func TestFreeRegisteredByPhysicalAddress(t *testing.T) {
	alloc := pool.NewHeapAllocator()
	_, p1, err := alloc.Allocate(32, protocol.PacketAlignment, api.MemoryDMA)
	require.NoError(t, err)
	b2, p2, err := alloc.Allocate(32, protocol.PacketAlignment, api.MemoryDMA)
	require.NoError(t, err)
	require.NoError(t, alloc.Deallocate(b2, p2, protocol.PacketAlignment, api.MemoryDMA))

	require.NoError(t, freeRegistered(alloc, []uint64{p1, p2}, protocol.PacketAlignment))
	assert.Zero(t, alloc.Stats().InUse)
}
