// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Dispatch counters exported through Prometheus. A nil *Metrics is valid and
// records nothing, so components never branch on whether metrics are wired.

package control

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Send failure stages.
const (
	StageHeader = "header"
	StageData   = "data"
	StageFree   = "free"
)

// Metrics holds the dispatch counters.
type Metrics struct {
	sent          *prometheus.CounterVec
	sendErrors    *prometheus.CounterVec
	received      *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	poolExhausted *prometheus.CounterVec
	ipcRequeued   prometheus.Counter
	state         *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlink", Name: "events_sent_total",
			Help: "Events written to the transport.",
		}, []string{"link"}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlink", Name: "send_errors_total",
			Help: "Transport failures while sending events.",
		}, []string{"link", "stage"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlink", Name: "events_received_total",
			Help: "Valid headers handed to the multiplexer.",
		}, []string{"link"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlink", Name: "headers_dropped_total",
			Help: "Headers discarded for a bad magic.",
		}, []string{"link"}),
		poolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlink", Name: "pool_exhausted_total",
			Help: "Event acquisitions refused by an empty pool.",
		}, []string{"link"}),
		ipcRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xlink", Name: "ipc_requeued_total",
			Help: "Passthrough requests pushed back for lack of data.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xlink", Name: "dispatcher_state",
			Help: "Dispatcher lifecycle state (0 init, 1 running, 2 stopped, 3 error).",
		}, []string{"link"}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.sendErrors, m.received, m.dropped, m.poolExhausted, m.ipcRequeued, m.state)
	}
	return m
}

func linkLabel(linkID uint32) string {
	return strconv.FormatUint(uint64(linkID), 10)
}

// EventSent counts one event written to the transport.
func (m *Metrics) EventSent(linkID uint32) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(linkLabel(linkID)).Inc()
}

// SendError counts one failed send stage.
func (m *Metrics) SendError(linkID uint32, stage string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(linkLabel(linkID), stage).Inc()
}

// EventReceived counts one header delivered to the multiplexer.
func (m *Metrics) EventReceived(linkID uint32) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(linkLabel(linkID)).Inc()
}

// HeaderDropped counts one header discarded for a bad magic.
func (m *Metrics) HeaderDropped(linkID uint32) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(linkLabel(linkID)).Inc()
}

// PoolExhausted counts one refused acquisition.
func (m *Metrics) PoolExhausted(linkID uint32) {
	if m == nil {
		return
	}
	m.poolExhausted.WithLabelValues(linkLabel(linkID)).Inc()
}

// IPCRequeued counts one passthrough request pushed back.
func (m *Metrics) IPCRequeued() {
	if m == nil {
		return
	}
	m.ipcRequeued.Inc()
}

// SetState records a dispatcher state transition.
func (m *Metrics) SetState(linkID uint32, state int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(linkLabel(linkID)).Set(float64(state))
}

// Sent returns the sent counter for linkID.
func (m *Metrics) Sent(linkID uint32) prometheus.Counter {
	return m.sent.WithLabelValues(linkLabel(linkID))
}

// Received returns the received counter for linkID.
func (m *Metrics) Received(linkID uint32) prometheus.Counter {
	return m.received.WithLabelValues(linkLabel(linkID))
}

// Dropped returns the dropped-header counter for linkID.
func (m *Metrics) Dropped(linkID uint32) prometheus.Counter {
	return m.dropped.WithLabelValues(linkLabel(linkID))
}

// SendErrors returns the send-error counter for linkID and stage.
func (m *Metrics) SendErrors(linkID uint32, stage string) prometheus.Counter {
	return m.sendErrors.WithLabelValues(linkLabel(linkID), stage)
}

// Requeued returns the passthrough requeue counter.
func (m *Metrics) Requeued() prometheus.Counter {
	return m.ipcRequeued
}

// Exhausted returns the pool-exhaustion counter for linkID.
func (m *Metrics) Exhausted(linkID uint32) prometheus.Counter {
	return m.poolExhausted.WithLabelValues(linkLabel(linkID))
}
