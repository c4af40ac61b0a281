// File: pool/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HeapAllocator is a user-space stand-in for transfer-capable device memory.
// Normal allocations are aligned heap slices; DMA allocations additionally
// receive a synthetic, monotonically assigned physical address. Every live
// allocation is tracked so double or foreign frees are reported.

package pool

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/momentics/xlinkd/api"
)

// ErrNotAllocated is returned when freeing memory this allocator does not own.
var ErrNotAllocated = errors.New("buffer not allocated by this allocator")

// dmaBase is the first synthetic physical address handed out.
const dmaBase uint64 = 0x1000_0000

// Ensure compile-time interface compliance.
var _ api.Allocator = (*HeapAllocator)(nil)

type allocation struct {
	buf      []byte
	physAddr uint64
	kind     api.MemoryKind
}

// AllocatorStats aggregates allocation accounting.
type AllocatorStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	InUseBytes int64
	ByKind     map[api.MemoryKind]int64
}

// HeapAllocator implements api.Allocator over the Go heap.
type HeapAllocator struct {
	mu       sync.Mutex
	live     map[uintptr]allocation
	nextPhys uint64
	stats    AllocatorStats
}

// NewHeapAllocator creates an empty allocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{
		live:     make(map[uintptr]allocation),
		nextPhys: dmaBase,
		stats:    AllocatorStats{ByKind: make(map[api.MemoryKind]int64)},
	}
}

func addrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// Allocate returns a zeroed buffer of size bytes aligned to alignment.
func (a *HeapAllocator) Allocate(size, alignment int, kind api.MemoryKind) ([]byte, uint64, error) {
	if size < 0 {
		return nil, 0, fmt.Errorf("%w: negative size %d", api.ErrInvalidArgument, size)
	}
	if alignment <= 0 {
		alignment = 1
	}
	raw := make([]byte, size+alignment)
	off := 0
	if rem := int(addrOf(raw) % uintptr(alignment)); rem != 0 {
		off = alignment - rem
	}
	buf := raw[off : off+size]

	a.mu.Lock()
	defer a.mu.Unlock()
	var phys uint64
	if kind == api.MemoryDMA {
		phys = a.nextPhys
		step := uint64(size+alignment-1) / uint64(alignment) * uint64(alignment)
		if step == 0 {
			step = uint64(alignment)
		}
		a.nextPhys += step
	}
	a.live[addrOf(raw[off:])] = allocation{buf: buf, physAddr: phys, kind: kind}
	a.stats.TotalAlloc++
	a.stats.InUse++
	a.stats.InUseBytes += int64(size)
	a.stats.ByKind[kind]++
	return buf, phys, nil
}

// Deallocate releases buf. The kind and physical address must match the
// allocation.
func (a *HeapAllocator) Deallocate(buf []byte, physAddr uint64, alignment int, kind api.MemoryKind) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", ErrNotAllocated)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := addrOf(buf)
	al, ok := a.live[key]
	if !ok {
		return ErrNotAllocated
	}
	if al.kind != kind || al.physAddr != physAddr {
		return fmt.Errorf("%w: kind/address mismatch (have %s@0x%x, got %s@0x%x)",
			ErrNotAllocated, al.kind, al.physAddr, kind, physAddr)
	}
	delete(a.live, key)
	a.stats.TotalFree++
	a.stats.InUse--
	a.stats.InUseBytes -= int64(len(al.buf))
	a.stats.ByKind[kind]--
	return nil
}

// Lookup returns the live allocation whose physical address is physAddr.
func (a *HeapAllocator) Lookup(physAddr uint64) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, al := range a.live {
		if al.kind == api.MemoryDMA && al.physAddr == physAddr {
			return al.buf, true
		}
	}
	return nil, false
}

// Stats returns a snapshot of the accounting counters.
func (a *HeapAllocator) Stats() AllocatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.stats
	out.ByKind = make(map[api.MemoryKind]int64, len(a.stats.ByKind))
	for k, v := range a.stats.ByKind {
		out.ByKind[k] = v
	}
	return out
}
