// File: fake/allocator.go
// Author: momentics <momentics@gmail.com>
//
// Fake allocator: heap-backed accounting plus injected failures and a log
// of every release.

package fake

import (
	"sync"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/pool"
)

// Ensure compile-time interface compliance.
var _ api.Allocator = (*Allocator)(nil)

// Free is one recorded Deallocate call.
type Free struct {
	Len      int
	PhysAddr uint64
	Kind     api.MemoryKind
	Err      error
}

// Allocator wraps pool.HeapAllocator.
type Allocator struct {
	*pool.HeapAllocator

	mu       sync.Mutex
	allocErr error
	freeErr  error
	frees    []Free
}

// NewAllocator creates a new fake allocator.
func NewAllocator() *Allocator {
	return &Allocator{HeapAllocator: pool.NewHeapAllocator()}
}

// Allocate implements api.Allocator.
func (a *Allocator) Allocate(size, alignment int, kind api.MemoryKind) ([]byte, uint64, error) {
	a.mu.Lock()
	err := a.allocErr
	a.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}
	return a.HeapAllocator.Allocate(size, alignment, kind)
}

// Deallocate implements api.Allocator and records the call.
func (a *Allocator) Deallocate(buf []byte, physAddr uint64, alignment int, kind api.MemoryKind) error {
	a.mu.Lock()
	injected := a.freeErr
	a.mu.Unlock()
	err := injected
	if err == nil {
		err = a.HeapAllocator.Deallocate(buf, physAddr, alignment, kind)
	}
	a.mu.Lock()
	a.frees = append(a.frees, Free{Len: len(buf), PhysAddr: physAddr, Kind: kind, Err: err})
	a.mu.Unlock()
	return err
}

// SetAllocateError configures Allocate to fail with err.
func (a *Allocator) SetAllocateError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocErr = err
}

// SetDeallocateError configures Deallocate to fail with err.
func (a *Allocator) SetDeallocateError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeErr = err
}

// Frees returns the recorded Deallocate calls.
func (a *Allocator) Frees() []Free {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Free, len(a.frees))
	copy(out, a.frees)
	return out
}
