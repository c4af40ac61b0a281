// Package pool
// Author: momentics <momentics@gmail.com>
//
// Event storage for the xlink dispatch core.
//
// Includes:
//   - Event, the in-memory form of a header plus its payload reference
//   - EventPool, a fixed set of pre-allocated events per link
//   - EventQueue, the bounded FIFO between submitters and the TX worker
//   - HeapAllocator, transfer memory with synthetic physical addresses
//
// All types are safe for concurrent use.
package pool
