package control_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/control"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := control.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 16, cfg.MaxLinks)
	assert.Equal(t, 1024, cfg.PoolCapacity)
	assert.Equal(t, control.TxModeSync, cfg.TxMode)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_links: 4
pool_capacity: 32
rx_poll_interval: 5ms
join_timeout: 1s
tx_mode: queued
local_host: true
`), 0o600))

	cfg, err := control.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxLinks)
	assert.Equal(t, 32, cfg.PoolCapacity)
	assert.Equal(t, 5*time.Millisecond, cfg.RxPollInterval)
	assert.Equal(t, time.Second, cfg.JoinTimeout)
	assert.Equal(t, control.TxModeQueued, cfg.TxMode)
	assert.True(t, cfg.LocalHost)
	assert.Equal(t, 10000, cfg.EventQueueCapacity, "unset fields keep defaults")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_links: 0\ntx_mode: async\npacket_alignment: 48\n"), 0o600))

	_, err := control.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_links")
	assert.Contains(t, err.Error(), "tx_mode")
	assert.Contains(t, err.Error(), "packet_alignment")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := control.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	cfg := control.Default()
	log, err := control.NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, log)

	cfg.LogLevel = "loud"
	_, err = control.NewLogger(cfg)
	assert.Error(t, err)
}
