// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import "fmt"

// DispatcherState enumerates the lifecycle of a link dispatcher.
type DispatcherState int32

const (
	// StateInit: constructed, never started.
	StateInit DispatcherState = iota
	// StateRunning: both workers are serving the link.
	StateRunning
	// StateStopped: workers joined; the dispatcher may be started again.
	StateStopped
	// StateError: a worker failed to start or join. Terminal.
	StateError
)

func (s DispatcherState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Origin tells whether an event was produced locally for sending or read
// off the wire.
type Origin int

const (
	OriginTX Origin = iota
	OriginRX
)

func (o Origin) String() string {
	if o == OriginRX {
		return "rx"
	}
	return "tx"
}

// Interface identifies the physical or virtual transport behind a device.
type Interface int

const (
	InterfaceIPC Interface = iota
	InterfacePCIe
	InterfaceUSB
	InterfaceEthernet
	InterfaceNull
)

func (i Interface) String() string {
	switch i {
	case InterfaceIPC:
		return "ipc"
	case InterfacePCIe:
		return "pcie"
	case InterfaceUSB:
		return "usb"
	case InterfaceEthernet:
		return "eth"
	case InterfaceNull:
		return "null"
	default:
		return fmt.Sprintf("interface(%d)", int(i))
	}
}

// MemoryKind selects the allocator path for transfer-capable memory.
type MemoryKind int

const (
	// MemoryNormal is ordinary kernel/heap memory.
	MemoryNormal MemoryKind = iota
	// MemoryDMA is contiguous, device-addressable memory with a physical address.
	MemoryDMA
)

func (k MemoryKind) String() string {
	if k == MemoryDMA {
		return "dma"
	}
	return "normal"
}

// Handle identifies the remote device a link talks to.
type Handle struct {
	DeviceName string
	SWDeviceID uint32
}

// Device identity bits: the interface type lives in bits 24..26 of the
// software device id.
const (
	SWDeviceIDInterfaceShift = 24
	SWDeviceIDInterfaceMask  = 0x7
)

// InterfaceOf decodes the interface type encoded in a software device id.
func InterfaceOf(swDeviceID uint32) Interface {
	switch (swDeviceID >> SWDeviceIDInterfaceShift) & SWDeviceIDInterfaceMask {
	case 0:
		return InterfaceIPC
	case 1:
		return InterfacePCIe
	case 2:
		return InterfaceUSB
	case 3:
		return InterfaceEthernet
	default:
		return InterfaceNull
	}
}

// MakeSWDeviceID builds a software device id for iface with the given
// low-order device number.
func MakeSWDeviceID(iface Interface, number uint32) uint32 {
	return (uint32(iface)&SWDeviceIDInterfaceMask)<<SWDeviceIDInterfaceShift | (number & 0x00FFFFFF)
}
