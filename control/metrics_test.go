package control_test

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/control"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(reg)

	m.EventSent(1)
	m.EventSent(1)
	m.EventReceived(2)
	m.HeaderDropped(2)
	m.SendError(1, control.StageData)
	m.IPCRequeued()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sent(1)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Sent(2)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Received(2)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped(2)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendErrors(1, control.StageData)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requeued()))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *control.Metrics
	assert.NotPanics(t, func() {
		m.EventSent(0)
		m.SendError(0, control.StageHeader)
		m.EventReceived(0)
		m.HeaderDropped(0)
		m.PoolExhausted(0)
		m.IPCRequeued()
		m.SetState(0, 1)
	})
}

func TestProbesDump(t *testing.T) {
	p := control.NewProbes()
	p.Register("link.1.state", func() any { return "running" })
	p.Register("link.0.state", func() any { return "init" })

	assert.Equal(t, []string{"link.0.state", "link.1.state"}, p.Names())
	assert.Equal(t, map[string]any{"link.0.state": "init", "link.1.state": "running"}, p.Dump())
}

func TestPlatformProbes(t *testing.T) {
	p := control.NewProbes()
	control.RegisterPlatformProbes(p)

	dump := p.Dump()
	assert.Equal(t, runtime.GOOS, dump["platform.os"])
	assert.Equal(t, runtime.NumCPU(), dump["platform.cpus"])
	allowed := dump["platform.allowed_cpus"].(int)
	assert.Positive(t, allowed)
	assert.LessOrEqual(t, allowed, runtime.NumCPU())
}
