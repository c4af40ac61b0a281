// File: dispatcher/passthrough.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bridge services passthrough requests against a local IPC endpoint and
// re-emits the results as write events on the link it was bound to at
// start. Requests with nothing to read yet are pushed back and retried.

package dispatcher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/internal/concurrency"
	"github.com/momentics/xlinkd/ipc"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
)

// Bridge is the singleton passthrough dispatcher of a local host.
type Bridge struct {
	r        *Registry
	endpoint ipc.Endpoint
	buffers  *ipc.BufferTable
	queue    *pool.EventQueue
	signal   *concurrency.Signal
	worker   *concurrency.Worker
	log      *zap.Logger
	linkID   uint32
	hbuf     [ipc.HandleSize]byte
}

func newBridge(r *Registry, ep ipc.Endpoint, buffers *ipc.BufferTable) *Bridge {
	return &Bridge{
		r:        r,
		endpoint: ep,
		buffers:  buffers,
		queue:    pool.NewEventQueue(r.cfg.IPCQueueCapacity),
		signal:   concurrency.NewSignal(r.cfg.IPCQueueCapacity),
		worker:   concurrency.NewWorker("ipc-bridge", concurrency.WithClock(r.clock)),
		log:      r.log.Named("ipc-bridge"),
	}
}

// Running reports whether the bridge worker is alive.
func (b *Bridge) Running() bool {
	return b.worker.Running()
}

// Pending returns the number of queued requests.
func (b *Bridge) Pending() int {
	return b.queue.Len()
}

// AdmissionLimit returns the occupancy at which new requests are refused.
func (b *Bridge) AdmissionLimit() int {
	return b.queue.AdmissionLimit()
}

// Buffers returns the handle table used by READ requests.
func (b *Bridge) Buffers() *ipc.BufferTable {
	return b.buffers
}

func (b *Bridge) start(ctx context.Context, linkID uint32) error {
	b.linkID = linkID
	if err := b.worker.Start(ctx, b.loop); err != nil {
		return err
	}
	b.log.Info("ipc bridge started", zap.Uint32("link_id", linkID))
	return nil
}

func (b *Bridge) stop() error {
	if err := b.worker.Stop(b.r.cfg.JoinTimeout); err != nil {
		return api.NewError(api.ErrCodeFatal, "join ipc bridge", err)
	}
	return nil
}

// drain returns every queued request to its pool.
func (b *Bridge) drain() {
	for {
		ev, ok := b.queue.Dequeue()
		if !ok {
			return
		}
		b.r.DestroyEvent(ev)
	}
}

func (b *Bridge) submit(ev *pool.Event) error {
	if !b.queue.EnqueueAdmitted(ev) {
		return api.NewError(api.ErrCodeAdmission, "passthrough queue above admission threshold", api.ErrQueueFull).
			WithContext("pending", b.queue.Len()).WithContext("limit", b.queue.AdmissionLimit())
	}
	b.signal.Post()
	return nil
}

func (b *Bridge) loop(ctx context.Context, ready func()) error {
	ready()
	for {
		ev, ok := b.queue.Dequeue()
		if !ok {
			if err := b.signal.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		if ctx.Err() != nil {
			b.queue.Enqueue(ev)
			return nil
		}
		if !b.serve(ctx, ev) {
			continue
		}
		if !b.queue.EnqueueBounded(ev) {
			b.log.Warn("requeue refused, request dropped", zap.Stringer("type", ev.Header.Type))
			b.r.DestroyEvent(ev)
			continue
		}
		b.r.metrics.IPCRequeued()
		t := b.r.clock.Timer(b.r.cfg.RxPollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// serve handles one request. It returns true when the request must be
// retried; otherwise the request event has been released.
func (b *Bridge) serve(ctx context.Context, req *pool.Event) bool {
	switch req.Header.Type {
	case protocol.PassthruReadToBufferReq:
		return b.readToBuffer(ctx, req)
	case protocol.PassthruReadReq:
		return b.readByHandle(ctx, req)
	default:
		_, err := b.read(ctx, req, b.hbuf[:], false)
		if errors.Is(err, api.ErrNoData) {
			return true
		}
		b.log.Debug("passthrough request consumed", zap.Stringer("type", req.Header.Type), zap.Error(err))
		b.r.DestroyEvent(req)
		return false
	}
}

func (b *Bridge) read(ctx context.Context, req *pool.Event, buf []byte, volatile bool) (int, error) {
	var devID uint32
	if req.Handle != nil {
		devID = req.Handle.SWDeviceID
	}
	return b.endpoint.Read(ctx, devID, req.Header.Channel, buf, volatile, b.r.cfg.RxPollInterval)
}

// response takes a write event on the bound link, addressed like req.
func (b *Bridge) response(req *pool.Event) (*pool.Event, bool) {
	h := req.Handle
	if h == nil {
		if d := b.r.slot(b.linkID); d != nil {
			h = d.Handle()
		}
	}
	resp, err := b.r.CreateEvent(b.linkID, protocol.WriteReq, h, req.Header.Channel, 0, req.Header.Timeout)
	if err != nil {
		b.log.Debug("no event for passthrough response", zap.Error(err))
		return nil, false
	}
	return resp, true
}

func (b *Bridge) readToBuffer(ctx context.Context, req *pool.Event) bool {
	resp, ok := b.response(req)
	if !ok {
		return true
	}
	scratch, phys, err := b.r.alloc.Allocate(b.r.cfg.IPCScratchSize, b.r.cfg.PacketAlignment, api.MemoryNormal)
	if err != nil {
		b.log.Warn("scratch allocation failed", zap.Error(err))
		b.r.DestroyEvent(resp)
		return true
	}
	n, err := b.read(ctx, req, scratch, true)
	if err != nil {
		_ = b.r.alloc.Deallocate(scratch, phys, b.r.cfg.PacketAlignment, api.MemoryNormal)
		b.r.DestroyEvent(resp)
		if errors.Is(err, api.ErrNoData) {
			return true
		}
		b.log.Warn("volatile read failed", zap.Uint16("channel", req.Header.Channel), zap.Error(err))
		b.r.DestroyEvent(req)
		return false
	}
	resp.Header.Size = uint32(n)
	resp.SetPayload(scratch[:n], phys, true)
	b.emit(resp)
	b.r.DestroyEvent(req)
	return false
}

func (b *Bridge) readByHandle(ctx context.Context, req *pool.Event) bool {
	resp, ok := b.response(req)
	if !ok {
		return true
	}
	n, err := b.read(ctx, req, b.hbuf[:], false)
	if err != nil {
		b.r.DestroyEvent(resp)
		if errors.Is(err, api.ErrNoData) {
			return true
		}
		b.log.Warn("metadata read failed", zap.Uint16("channel", req.Header.Channel), zap.Error(err))
		b.r.DestroyEvent(req)
		return false
	}
	handle, ok := ipc.DecodeHandle(b.hbuf[:n])
	var reg ipc.Registered
	if ok {
		reg, ok = b.buffers.Take(handle)
	}
	if !ok {
		b.log.Warn("unknown buffer handle", zap.Uint32("handle", handle), zap.Int("n", n))
		b.r.DestroyEvent(resp)
		b.r.DestroyEvent(req)
		return false
	}
	// the producer keeps the registered buffer; the response only borrows it
	resp.Header.Size = uint32(len(reg.Data))
	resp.SetPayload(reg.Data, reg.PhysAddr, false)
	b.emit(resp)
	b.r.DestroyEvent(req)
	return false
}

// emit submits a response. If the link refuses it, the payload and event
// are released here.
func (b *Bridge) emit(resp *pool.Event) {
	err := b.r.Submit(api.OriginTX, resp)
	if err == nil {
		return
	}
	if api.CodeOf(err) != api.ErrCodeAdmission {
		b.log.Debug("passthrough response send failed", zap.Error(err))
		return
	}
	b.log.Warn("passthrough response refused", zap.Uint32("link_id", resp.LinkID), zap.Error(err))
	if d := b.r.slot(resp.LinkID); d != nil {
		_ = d.releasePayload(resp)
	}
	b.r.DestroyEvent(resp)
}
