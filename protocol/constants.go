// Package protocol
// Author: momentics <momentics@gmail.com>
//
// xlink wire protocol constants

package protocol

const (
	// HeaderMagic marks the start of every valid event header ("xlnk").
	HeaderMagic uint32 = 0x786C6E6B

	// InvalidEventID is stamped on freshly created events until submit
	// assigns a real id.
	InvalidEventID uint32 = 0xDEADBEEF

	// FirstEventID is the first id handed out by a new id generator.
	FirstEventID uint32 = 0xA

	// HeaderCoreSize is the number of header bytes on the wire, excluding
	// the control-data region.
	HeaderCoreSize = 22

	// MaxControlDataSize bounds the inline control data carried by a
	// WRITE_CONTROL request.
	MaxControlDataSize = 100

	// MaxHeaderSize is the largest single header transfer.
	MaxHeaderSize = HeaderCoreSize + MaxControlDataSize

	// PacketAlignment is the alignment requested for payload memory.
	PacketAlignment = 64
)

// Field offsets within the encoded header.
const (
	offMagic   = 0
	offID      = 4
	offType    = 8
	offChannel = 12
	offSize    = 14
	offTimeout = 18
)
