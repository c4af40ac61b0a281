// File: ipc/buffers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BufferTable maps handles (the physical address of a DMA buffer, truncated
// to the 32-bit handle carried on the wire) to buffers a local producer has
// registered for zero-copy passthrough. Registration does not transfer
// ownership: the producer frees a buffer once it has been taken and sent.

package ipc

import "sync"

// Registered is a buffer published under a handle.
type Registered struct {
	Data     []byte
	PhysAddr uint64
}

// BufferTable is safe for concurrent use.
type BufferTable struct {
	mu      sync.Mutex
	entries map[uint32]Registered
}

// NewBufferTable creates an empty table.
func NewBufferTable() *BufferTable {
	return &BufferTable{entries: make(map[uint32]Registered)}
}

// HandleOf returns the wire handle for a physical address.
func HandleOf(physAddr uint64) uint32 {
	return uint32(physAddr)
}

// Register publishes data under the handle derived from physAddr and
// returns that handle.
func (t *BufferTable) Register(data []byte, physAddr uint64) uint32 {
	h := HandleOf(physAddr)
	t.mu.Lock()
	t.entries[h] = Registered{Data: data, PhysAddr: physAddr}
	t.mu.Unlock()
	return h
}

// Find resolves a handle.
func (t *BufferTable) Find(handle uint32) (Registered, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[handle]
	return r, ok
}

// Unregister removes a handle and reports whether it was present.
func (t *BufferTable) Unregister(handle uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[handle]; !ok {
		return false
	}
	delete(t.entries, handle)
	return true
}

// Take resolves and unregisters a handle in one step.
func (t *BufferTable) Take(handle uint32) (Registered, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[handle]
	if ok {
		delete(t.entries, handle)
	}
	return r, ok
}

// Len returns the number of registered buffers.
func (t *BufferTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
