// File: dispatcher/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry is the top-level dispatch context: a fixed arena of dispatchers
// indexed by link id, the optional passthrough bridge, the shared id
// generator and the ambient logger and metrics. Init and Destroy run once.

package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/ipc"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
)

// Registry owns every dispatcher for its lifetime.
type Registry struct {
	id      uuid.UUID
	cfg     control.Config
	tr      api.Transport
	alloc   api.Allocator
	log     *zap.Logger
	metrics *control.Metrics
	clock   clock.Clock
	probes  *control.Probes

	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes Start, Stop and Destroy. Submit does not take it.
	mu        sync.Mutex
	links     []*Dispatcher
	bridge    *Bridge
	ownsEP    bool
	destroyed atomic.Bool
}

// Init validates cfg and constructs one dispatcher per link. No worker runs
// until Start.
func Init(cfg control.Config, tr api.Transport, alloc api.Allocator, mux Multiplexer, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, api.NewError(api.ErrCodeAdmission, "invalid configuration", fmt.Errorf("%w: %w", api.ErrInvalidArgument, err))
	}
	if tr == nil || alloc == nil || mux == nil {
		return nil, api.NewError(api.ErrCodeAdmission, "transport, allocator and multiplexer are required", api.ErrInvalidArgument)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	metrics := o.metrics
	if metrics == nil {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		metrics = control.NewMetrics(reg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		id:      uuid.New(),
		cfg:     cfg,
		tr:      tr,
		alloc:   alloc,
		metrics: metrics,
		clock:   o.clock,
		probes:  control.NewProbes(),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.log = o.logger.Named("dispatcher").With(zap.String("registry", r.id.String()))

	ids := newIDGenerator()
	r.links = make([]*Dispatcher, cfg.MaxLinks)
	for i := range r.links {
		r.links[i] = newDispatcher(uint32(i), cfg, tr, alloc, mux, ids, r.log, metrics, o.clock)
	}

	if cfg.LocalHost {
		ep := o.endpoint
		if ep == nil {
			ep = ipc.NewMemoryEndpoint()
			r.ownsEP = true
		}
		buffers := o.buffers
		if buffers == nil {
			buffers = ipc.NewBufferTable()
		}
		r.bridge = newBridge(r, ep, buffers)
	}

	r.registerProbes()
	r.log.Info("registry initialized",
		zap.Int("links", cfg.MaxLinks),
		zap.Int("pool_capacity", cfg.PoolCapacity),
		zap.String("tx_mode", cfg.TxMode),
		zap.Bool("local_host", cfg.LocalHost))
	return r, nil
}

func (r *Registry) registerProbes() {
	control.RegisterPlatformProbes(r.probes)
	r.probes.Register("registry.id", func() any { return r.id.String() })
	r.probes.Register("links.state", func() any {
		out := make(map[uint32]string, len(r.links))
		for _, d := range r.links {
			out[d.linkID] = d.State().String()
		}
		return out
	})
	r.probes.Register("links.pool_available", func() any {
		out := make(map[uint32]int, len(r.links))
		for _, d := range r.links {
			out[d.linkID] = d.PoolAvailable()
		}
		return out
	})
	if r.bridge != nil {
		r.probes.Register("ipc.pending", func() any { return r.bridge.Pending() })
	}
}

// ID returns the registry instance id used for log correlation.
func (r *Registry) ID() uuid.UUID {
	return r.id
}

// Config returns the configuration the registry was built with.
func (r *Registry) Config() control.Config {
	return r.cfg
}

// Probes returns the registry's state probes.
func (r *Registry) Probes() *control.Probes {
	return r.probes
}

// Metrics returns the registry's metrics.
func (r *Registry) Metrics() *control.Metrics {
	return r.metrics
}

// Bridge returns the passthrough bridge, or nil when not serving a local host.
func (r *Registry) Bridge() *Bridge {
	return r.bridge
}

func (r *Registry) link(linkID uint32) (*Dispatcher, error) {
	if r.destroyed.Load() {
		return nil, api.NewError(api.ErrCodeAdmission, "registry destroyed", api.ErrAlreadyDestroyed)
	}
	if int64(linkID) >= int64(len(r.links)) {
		return nil, api.NewError(api.ErrCodeAdmission, "unknown link", api.ErrUnknownLink).
			WithContext("link_id", linkID)
	}
	return r.links[linkID], nil
}

// slot returns the dispatcher of linkID regardless of registry state, or nil.
func (r *Registry) slot(linkID uint32) *Dispatcher {
	if int64(linkID) >= int64(len(r.links)) {
		return nil
	}
	return r.links[linkID]
}

// Dispatcher returns the dispatcher serving linkID.
func (r *Registry) Dispatcher(linkID uint32) (*Dispatcher, error) {
	return r.link(linkID)
}

// Start binds h to the link and starts its workers. The passthrough bridge,
// when configured, comes up with the first link started.
func (r *Registry) Start(linkID uint32, h *api.Handle) error {
	if h == nil {
		return api.NewError(api.ErrCodeAdmission, "nil handle", api.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, err := r.link(linkID)
	if err != nil {
		return err
	}
	if err := d.start(r.ctx, h); err != nil {
		return err
	}
	if r.bridge != nil && !r.bridge.Running() {
		if err := r.bridge.start(r.ctx, linkID); err != nil {
			r.log.Error("ipc bridge failed to start", zap.Uint32("link_id", linkID), zap.Error(err))
		}
	}
	return nil
}

// Submit sends ev on the link it was created for. On an admission error
// the caller keeps ev; otherwise ev is consumed.
func (r *Registry) Submit(origin api.Origin, ev *pool.Event) error {
	if ev == nil {
		return api.NewError(api.ErrCodeAdmission, "nil event", api.ErrInvalidArgument)
	}
	d, err := r.link(ev.LinkID)
	if err != nil {
		return err
	}
	return d.submit(origin, ev)
}

// SubmitPassthrough queues a passthrough request for the bridge. The queue
// admits requests while it is below 70% of capacity.
func (r *Registry) SubmitPassthrough(ev *pool.Event) error {
	if ev == nil {
		return api.NewError(api.ErrCodeAdmission, "nil event", api.ErrInvalidArgument)
	}
	if r.destroyed.Load() {
		return api.NewError(api.ErrCodeAdmission, "registry destroyed", api.ErrAlreadyDestroyed)
	}
	if r.bridge == nil {
		return api.NewError(api.ErrCodeAdmission, "passthrough disabled", api.ErrInvalidState)
	}
	return r.bridge.submit(ev)
}

// Stop joins the link's workers.
func (r *Registry) Stop(linkID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, err := r.link(linkID)
	if err != nil {
		return err
	}
	return d.stop()
}

// Destroy stops the bridge and every running link, releases queued events
// and their write payloads, and drains every pool. It runs once; later
// calls return ErrAlreadyDestroyed.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.destroyed.CompareAndSwap(false, true) {
		return api.NewError(api.ErrCodeAdmission, "registry destroyed", api.ErrAlreadyDestroyed)
	}

	var errs error
	if r.bridge != nil {
		errs = multierr.Append(errs, r.bridge.stop())
		r.bridge.drain()
		if r.ownsEP {
			if c, ok := r.bridge.endpoint.(interface{ Close() error }); ok {
				errs = multierr.Append(errs, c.Close())
			}
		}
	}
	for _, d := range r.links {
		if d.State() == api.StateRunning {
			errs = multierr.Append(errs, d.stop())
		}
	}
	drainedPending, freed := 0, 0
	for _, d := range r.links {
		n, err := d.drainPending()
		drainedPending += n
		errs = multierr.Append(errs, err)
		freed += d.pool.Drain()
	}
	r.cancel()
	r.log.Info("registry destroyed",
		zap.Int("pending_released", drainedPending),
		zap.Int("pooled_freed", freed),
		zap.Error(errs))
	return errs
}

// CreateEvent takes an event from the link's pool and stamps its header.
// An empty pool yields ErrPoolExhausted.
func (r *Registry) CreateEvent(linkID uint32, t protocol.EventType, h *api.Handle, channel uint16, size, timeout uint32) (*pool.Event, error) {
	d, err := r.link(linkID)
	if err != nil {
		return nil, err
	}
	ev, err := d.pool.Acquire()
	if err != nil {
		r.metrics.PoolExhausted(linkID)
		return nil, api.NewError(api.ErrCodeExhausted, "create event", err).WithContext("link_id", linkID)
	}
	ev.Header = protocol.NewHeader(t, channel, size, timeout)
	ev.LinkID = linkID
	ev.Handle = h
	if h != nil {
		ev.Interface = r.tr.ResolveInterface(h.SWDeviceID)
	}
	return ev, nil
}

// DestroyEvent returns ev to its link's pool. The payload is not touched.
func (r *Registry) DestroyEvent(ev *pool.Event) {
	if ev == nil {
		return
	}
	if d := r.slot(ev.LinkID); d != nil {
		d.pool.Release(ev)
	}
}

// State returns the lifecycle state of a link.
func (r *Registry) State(linkID uint32) (api.DispatcherState, error) {
	d, err := r.link(linkID)
	if err != nil {
		return api.StateError, err
	}
	return d.State(), nil
}

// PoolAvailable returns the number of free events in a link's pool.
func (r *Registry) PoolAvailable(linkID uint32) (int, error) {
	d, err := r.link(linkID)
	if err != nil {
		return 0, err
	}
	return d.PoolAvailable(), nil
}
