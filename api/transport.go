// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the byte-transport and transfer-memory contracts the dispatch core
// consumes. Implementations live outside the core (transport/, pool/, fake/).

package api

import (
	"context"
	"time"
)

// Transport moves raw bytes to and from a device over one interface.
//
// Write and Read return the number of bytes transferred. A Read with a
// positive timeout must return ErrTimeout (possibly wrapped) once the timeout
// elapses without data, and must observe ctx cancellation.
type Transport interface {
	Write(ctx context.Context, iface Interface, swDeviceID uint32, buf []byte, timeout time.Duration) (int, error)
	Read(ctx context.Context, iface Interface, swDeviceID uint32, buf []byte, timeout time.Duration) (int, error)
	// ResolveInterface maps a software device id to the interface serving it.
	ResolveInterface(swDeviceID uint32) Interface
}

// Allocator hands out transfer-capable memory. DMA allocations report a
// non-zero physical address.
type Allocator interface {
	Allocate(size, alignment int, kind MemoryKind) (buf []byte, physAddr uint64, err error)
	Deallocate(buf []byte, physAddr uint64, alignment int, kind MemoryKind) error
}
