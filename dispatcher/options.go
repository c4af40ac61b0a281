// File: dispatcher/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/ipc"
)

// Option customizes a Registry at Init.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	metrics    *control.Metrics
	clock      clock.Clock
	endpoint   ipc.Endpoint
	buffers    *ipc.BufferTable
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		clock:  clock.New(),
	}
}

// WithLogger sets the parent logger. Components log under named children.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer registers the dispatch metrics on reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMetrics uses an existing metrics set. It takes precedence over
// WithRegisterer.
func WithMetrics(m *control.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the clock used for bounded joins and poll backoff.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIPCEndpoint sets the local endpoint read by the passthrough bridge.
// Defaults to an in-memory endpoint owned by the registry.
func WithIPCEndpoint(ep ipc.Endpoint) Option {
	return func(o *options) { o.endpoint = ep }
}

// WithBufferTable sets the table resolving READ passthrough handles.
func WithBufferTable(t *ipc.BufferTable) Option {
	return func(o *options) { o.buffers = t }
}
