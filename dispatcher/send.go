// File: dispatcher/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Send path: header transfer, optional payload transfer, payload release.
// Everything here runs under d.mu.

package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/pool"
)

// target returns the device and interface an event is written to. Events
// created without a handle go to the link's bound device.
func (d *Dispatcher) target(ev *pool.Event) (uint32, api.Interface) {
	if ev.Handle != nil {
		return ev.Handle.SWDeviceID, ev.Interface
	}
	return d.handle.SWDeviceID, d.iface
}

// sendLocked writes ev to the transport. An owned payload is released once
// the event leaves the send path, on failure as well as on success. The
// result is the write result only; release failures are counted and logged
// by releasePayload.
func (d *Dispatcher) sendLocked(ctx context.Context, ev *pool.Event) error {
	err := d.writeEvent(ctx, ev)
	_ = d.releasePayload(ev)
	if err != nil {
		return err
	}
	d.metrics.EventSent(d.linkID)
	return nil
}

func (d *Dispatcher) writeEvent(ctx context.Context, ev *pool.Event) error {
	devID, iface := d.target(ev)
	timeout := time.Duration(ev.Header.Timeout) * time.Millisecond

	n, err := ev.Header.Encode(d.hdrBuf[:])
	if err != nil {
		d.metrics.SendError(d.linkID, control.StageHeader)
		return api.NewError(api.ErrCodeTransient, "encode header", fmt.Errorf("%w: %w", api.ErrInvalidArgument, err)).
			WithContext("link_id", d.linkID).WithContext("type", ev.Header.Type.String())
	}
	if err := d.write(ctx, iface, devID, d.hdrBuf[:n], timeout); err != nil {
		d.metrics.SendError(d.linkID, control.StageHeader)
		if !d.headerFail {
			d.headerFail = true
			d.log.Warn("header write failed",
				zap.Stringer("type", ev.Header.Type),
				zap.Uint32("sw_device_id", devID),
				zap.Error(err))
		}
		return api.NewError(api.ErrCodeTransient, "write header", err).WithContext("link_id", d.linkID)
	}
	d.headerFail = false

	if !ev.Header.Type.CarriesPayload() {
		return nil
	}
	size := int(ev.Header.Size)
	if len(ev.Data) < size {
		d.metrics.SendError(d.linkID, control.StageData)
		return api.NewError(api.ErrCodeTransient, "payload shorter than header size",
			fmt.Errorf("%w: have %d, want %d", api.ErrShortTransfer, len(ev.Data), size)).
			WithContext("link_id", d.linkID)
	}
	if err := d.write(ctx, iface, devID, ev.Data[:size], timeout); err != nil {
		d.metrics.SendError(d.linkID, control.StageData)
		d.log.Debug("payload write failed", zap.Stringer("type", ev.Header.Type), zap.Error(err))
		return api.NewError(api.ErrCodeTransient, "write payload", err).WithContext("link_id", d.linkID)
	}
	return nil
}

// write performs one transport write and treats a partial count as failure.
// A zero timeout waits until the write completes or ctx ends.
func (d *Dispatcher) write(ctx context.Context, iface api.Interface, devID uint32, buf []byte, timeout time.Duration) error {
	n, err := d.tr.Write(ctx, iface, devID, buf, timeout)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: wrote %d of %d bytes", api.ErrShortTransfer, n, len(buf))
	}
	return nil
}

// releasePayload hands an owned payload back to the allocator on the path
// matching how it was obtained, and detaches it from the event.
func (d *Dispatcher) releasePayload(ev *pool.Event) error {
	if !ev.OwnsPayload() || ev.Data == nil {
		return nil
	}
	data, phys, kind := ev.Data, ev.PhysAddr, ev.MemoryKind()
	ev.SetPayload(nil, 0, false)
	if err := d.alloc.Deallocate(data, phys, d.cfg.PacketAlignment, kind); err != nil {
		d.metrics.SendError(d.linkID, control.StageFree)
		d.log.Warn("payload release failed", zap.Stringer("kind", kind), zap.Error(err))
		return api.NewError(api.ErrCodeInternal, "release payload", err).WithContext("link_id", d.linkID)
	}
	return nil
}
