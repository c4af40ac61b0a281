// File: dispatcher/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dispatcher is the per-link runtime: lifecycle state, RX and TX workers,
// the pending-send queue and the per-link send lock. Lock order is always
// d.mu before any queue lock.

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/internal/concurrency"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
)

// Dispatcher serves one link.
type Dispatcher struct {
	linkID  uint32
	cfg     control.Config
	tr      api.Transport
	alloc   api.Allocator
	mux     Multiplexer
	ids     *idGenerator
	log     *zap.Logger
	metrics *control.Metrics
	clock   clock.Clock

	pool    *pool.EventPool
	pending *pool.EventQueue
	signal  *concurrency.Signal
	rx      *concurrency.Worker
	tx      *concurrency.Worker

	state atomic.Int32

	// mu serializes sends on the link and guards the fields below.
	mu         sync.Mutex
	handle     *api.Handle
	iface      api.Interface
	ctx        context.Context
	cancel     context.CancelFunc
	hdrBuf     [protocol.MaxHeaderSize]byte
	headerFail bool
}

func newDispatcher(linkID uint32, cfg control.Config, tr api.Transport, alloc api.Allocator, mux Multiplexer,
	ids *idGenerator, log *zap.Logger, metrics *control.Metrics, clk clock.Clock) *Dispatcher {
	name := "link-" + strconv.FormatUint(uint64(linkID), 10)
	var rxOpts, txOpts []concurrency.WorkerOption
	rxOpts = append(rxOpts, concurrency.WithClock(clk))
	txOpts = append(txOpts, concurrency.WithClock(clk))
	if cfg.PinThreads {
		if n := concurrency.AllowedCPUs(); n > 0 {
			rxOpts = append(rxOpts, concurrency.WithCPU(int(linkID*2)%n))
			txOpts = append(txOpts, concurrency.WithCPU(int(linkID*2+1)%n))
		}
	}
	d := &Dispatcher{
		linkID:  linkID,
		cfg:     cfg,
		tr:      tr,
		alloc:   alloc,
		mux:     mux,
		ids:     ids,
		log:     log.Named("link").With(zap.Uint32("link_id", linkID)),
		metrics: metrics,
		clock:   clk,
		pool:    pool.NewEventPool(linkID, cfg.PoolCapacity),
		pending: pool.NewEventQueue(cfg.EventQueueCapacity),
		signal:  concurrency.NewSignal(cfg.EventQueueCapacity),
		rx:      concurrency.NewWorker(name+"-rx", rxOpts...),
		tx:      concurrency.NewWorker(name+"-tx", txOpts...),
	}
	d.setState(api.StateInit)
	return d
}

// LinkID returns the link served by the dispatcher.
func (d *Dispatcher) LinkID() uint32 {
	return d.linkID
}

// State returns the lifecycle state.
func (d *Dispatcher) State() api.DispatcherState {
	return api.DispatcherState(d.state.Load())
}

func (d *Dispatcher) setState(s api.DispatcherState) {
	d.state.Store(int32(s))
	d.metrics.SetState(d.linkID, int(s))
}

// Handle returns the remote handle bound by the last start.
func (d *Dispatcher) Handle() *api.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

// PoolAvailable returns the number of free pooled events.
func (d *Dispatcher) PoolAvailable() int {
	return d.pool.Available()
}

// Pending returns the number of queued unsent events.
func (d *Dispatcher) Pending() int {
	return d.pending.Len()
}

// start brings the link up: TX worker first, then RX. Callers hold the
// registry lock.
func (d *Dispatcher) start(parent context.Context, h *api.Handle) error {
	switch st := d.State(); st {
	case api.StateInit, api.StateStopped:
	default:
		return api.NewError(api.ErrCodeAdmission, "start rejected", api.ErrInvalidState).
			WithContext("link_id", d.linkID).WithContext("state", st.String())
	}

	ctx, cancel := context.WithCancel(parent)
	d.mu.Lock()
	d.handle = h
	d.iface = d.tr.ResolveInterface(h.SWDeviceID)
	d.ctx, d.cancel = ctx, cancel
	d.headerFail = false
	d.mu.Unlock()

	if err := d.tx.Start(ctx, d.txLoop); err != nil {
		cancel()
		d.setState(api.StateStopped)
		d.log.Error("tx worker failed to start", zap.Error(err))
		return api.NewError(api.ErrCodeFatal, "start tx worker", err).WithContext("link_id", d.linkID)
	}
	d.setState(api.StateRunning)

	if err := d.rx.Start(ctx, d.rxLoop); err != nil {
		if stopErr := d.tx.Stop(d.cfg.JoinTimeout); stopErr != nil {
			d.log.Error("tx worker did not join after rx start failure", zap.Error(stopErr))
		}
		cancel()
		d.setState(api.StateStopped)
		d.log.Error("rx worker failed to start", zap.Error(err))
		return api.NewError(api.ErrCodeFatal, "start rx worker", err).WithContext("link_id", d.linkID)
	}
	d.log.Info("link started",
		zap.String("device", h.DeviceName),
		zap.Uint32("sw_device_id", h.SWDeviceID),
		zap.Stringer("interface", d.iface))
	return nil
}

// stop joins RX then TX. A worker that does not join leaves the link in
// ERROR.
func (d *Dispatcher) stop() error {
	if st := d.State(); st != api.StateRunning {
		return api.NewError(api.ErrCodeAdmission, "stop rejected", api.ErrNotRunning).
			WithContext("link_id", d.linkID).WithContext("state", st.String())
	}
	if err := d.rx.Stop(d.cfg.JoinTimeout); err != nil {
		d.fail(err)
		return api.NewError(api.ErrCodeFatal, "join rx worker", err).WithContext("link_id", d.linkID)
	}
	if err := d.tx.Stop(d.cfg.JoinTimeout); err != nil {
		d.fail(err)
		return api.NewError(api.ErrCodeFatal, "join tx worker", err).WithContext("link_id", d.linkID)
	}
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.setState(api.StateStopped)
	d.log.Info("link stopped")
	return nil
}

func (d *Dispatcher) fail(err error) {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.setState(api.StateError)
	d.log.Error("worker failed to join, link unusable", zap.Error(err))
}

// submit sends or queues ev. The event goes back to the pool after a
// synchronous send whatever its outcome; a queued event is owned by the
// TX worker once accepted.
func (d *Dispatcher) submit(origin api.Origin, ev *pool.Event) error {
	if st := d.State(); st != api.StateRunning {
		return api.NewError(api.ErrCodeAdmission, "submit rejected", api.ErrNotRunning).
			WithContext("link_id", d.linkID).WithContext("state", st.String())
	}
	ev.Origin = origin
	if origin == api.OriginTX {
		ev.Header.ID = d.ids.Next()
	}

	if d.cfg.TxMode == control.TxModeQueued {
		if !d.pending.EnqueueBounded(ev) {
			return api.NewError(api.ErrCodeAdmission, "pending queue full", api.ErrQueueFull).
				WithContext("link_id", d.linkID).WithContext("capacity", d.pending.Cap())
		}
		d.signal.Post()
		return nil
	}

	d.mu.Lock()
	if d.State() != api.StateRunning {
		d.mu.Unlock()
		return api.NewError(api.ErrCodeAdmission, "submit rejected", api.ErrNotRunning).
			WithContext("link_id", d.linkID)
	}
	err := d.sendLocked(d.ctx, ev)
	d.mu.Unlock()
	d.pool.Release(ev)
	return err
}

// rxLoop reads headers until cancelled. The first event is acquired before
// ready so an empty pool fails the start.
func (d *Dispatcher) rxLoop(ctx context.Context, ready func()) error {
	ev, err := d.pool.Acquire()
	if err != nil {
		d.metrics.PoolExhausted(d.linkID)
		return fmt.Errorf("rx initial event: %w", err)
	}
	d.mu.Lock()
	h, iface := d.handle, d.iface
	d.mu.Unlock()
	ready()

	hdr := make([]byte, protocol.HeaderCoreSize)
	for {
		if ctx.Err() != nil {
			d.pool.Release(ev)
			return nil
		}
		n, err := d.tr.Read(ctx, iface, h.SWDeviceID, hdr, d.cfg.RxPollInterval)
		if err != nil {
			if !errors.Is(err, api.ErrTimeout) && ctx.Err() == nil {
				d.log.Debug("header read failed", zap.Error(err))
				d.sleep(ctx, d.cfg.RxPollInterval)
			}
			continue
		}
		if n != protocol.HeaderCoreSize {
			d.log.Debug("short header read", zap.Int("n", n))
			continue
		}
		if err := ev.Header.Decode(hdr); err != nil || !ev.Header.Valid() {
			d.metrics.HeaderDropped(d.linkID)
			continue
		}

		ev.LinkID = d.linkID
		ev.Origin = api.OriginRX
		ev.Handle = h
		ev.Interface = iface
		if err := d.mux.DeliverReceived(ev); err != nil {
			d.log.Debug("multiplexer kept event", zap.Stringer("type", ev.Header.Type), zap.Error(err))
			continue
		}
		d.metrics.EventReceived(d.linkID)

		ev = d.replacement(ctx)
		if ev == nil {
			return nil
		}
	}
}

// replacement acquires the next RX event, backing off one poll interval per
// failed attempt. Returns nil if ctx ends first.
func (d *Dispatcher) replacement(ctx context.Context) *pool.Event {
	for {
		ev, err := d.pool.Acquire()
		if err == nil {
			return ev
		}
		d.metrics.PoolExhausted(d.linkID)
		if !d.sleep(ctx, d.cfg.RxPollInterval) {
			return nil
		}
	}
}

// sleep waits for dur on the dispatcher clock. Returns false if ctx ended.
func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) bool {
	t := d.clock.Timer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// txLoop drains the pending queue in queued mode. In sync mode nothing is
// ever posted and the worker only waits for cancellation.
func (d *Dispatcher) txLoop(ctx context.Context, ready func()) error {
	ready()
	for {
		if err := d.signal.Wait(ctx); err != nil || ctx.Err() != nil {
			return nil
		}
		ev, ok := d.pending.Dequeue()
		if !ok {
			continue
		}
		d.mu.Lock()
		err := d.sendLocked(ctx, ev)
		d.mu.Unlock()
		if err != nil {
			d.log.Debug("queued send failed", zap.Error(err))
		}
		d.pool.Release(ev)
	}
}

// drainPending releases every queued event, freeing payloads of write
// requests first. Returns the number of events drained.
func (d *Dispatcher) drainPending() (int, error) {
	var errs error
	n := 0
	for {
		ev, ok := d.pending.Dequeue()
		if !ok {
			break
		}
		switch ev.Header.Type {
		case protocol.WriteReq, protocol.WriteVolatileReq:
			errs = multierr.Append(errs, d.releasePayload(ev))
		}
		d.pool.Release(ev)
		n++
	}
	return n, errs
}
