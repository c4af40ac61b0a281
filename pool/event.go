// File: pool/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Event is the unit of dispatch work. Events are pre-allocated per link and
// recycled through the link's EventPool; ownership moves between goroutines
// only through an EventQueue or an explicit hand-off call.

package pool

import (
	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/protocol"
)

// Payload ownership values for Event.UserData.
const (
	// PayloadBorrowed: the caller owns Data and frees it.
	PayloadBorrowed uint32 = 0
	// PayloadOwned: Data came from the transfer-memory allocator and is
	// released by the dispatch core once the event has been sent.
	PayloadOwned uint32 = 1
)

// Event is a header plus optional payload and routing bookkeeping.
type Event struct {
	Header    protocol.Header
	LinkID    uint32
	Handle    *api.Handle
	Interface api.Interface
	Data      []byte
	PhysAddr  uint64
	UserData  uint32
	Origin    api.Origin
}

// OwnsPayload reports whether the dispatch core must release Data.
func (e *Event) OwnsPayload() bool {
	return e.UserData == PayloadOwned
}

// MemoryKind returns the allocator path matching how Data was obtained.
func (e *Event) MemoryKind() api.MemoryKind {
	if e.PhysAddr != 0 {
		return api.MemoryDMA
	}
	return api.MemoryNormal
}

// SetPayload attaches data to the event. owned marks it for release after send.
func (e *Event) SetPayload(data []byte, physAddr uint64, owned bool) {
	e.Data = data
	e.PhysAddr = physAddr
	e.UserData = PayloadBorrowed
	if owned {
		e.UserData = PayloadOwned
	}
}

// reset clears the fields a new acquirer relies on.
func (e *Event) reset() {
	e.Data = nil
	e.PhysAddr = 0
	e.UserData = PayloadBorrowed
	e.Origin = api.OriginTX
}
