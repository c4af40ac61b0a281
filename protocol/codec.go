// File: protocol/codec.go
// Package protocol implements the fixed-header event codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Headers are encoded little-endian and unpadded. The control-data region
// is only put on the wire by WRITE_CONTROL requests, and then only the
// first Size bytes of it.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer is returned when a buffer cannot hold the header transfer.
	ErrShortBuffer = errors.New("buffer too short for event header")
	// ErrControlDataTooLarge is returned when a WRITE_CONTROL header declares
	// more inline bytes than the control-data region holds.
	ErrControlDataTooLarge = errors.New("control data exceeds header region")
)

// Header is the fixed event header exchanged between link peers.
type Header struct {
	Magic       uint32
	ID          uint32
	Type        EventType
	Channel     uint16
	Size        uint32
	Timeout     uint32
	ControlData [MaxControlDataSize]byte
}

// NewHeader returns a header stamped with the magic sentinel and the
// invalid event id.
func NewHeader(t EventType, channel uint16, size, timeout uint32) Header {
	return Header{
		Magic:   HeaderMagic,
		ID:      InvalidEventID,
		Type:    t,
		Channel: channel,
		Size:    size,
		Timeout: timeout,
	}
}

// Valid reports whether the header carries the magic sentinel. Headers that
// fail this check are line noise and must be dropped, not reported.
func (h *Header) Valid() bool {
	return h.Magic == HeaderMagic
}

// TransferSize returns the number of bytes the header occupies on the wire:
// the core size, plus Size bytes of inline control data for WRITE_CONTROL.
func (h *Header) TransferSize() (int, error) {
	if !h.Type.CarriesControlData() {
		return HeaderCoreSize, nil
	}
	if h.Size > MaxControlDataSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrControlDataTooLarge, h.Size, MaxControlDataSize)
	}
	return HeaderCoreSize + int(h.Size), nil
}

// Encode writes the header transfer into dst and returns the number of
// bytes written.
func (h *Header) Encode(dst []byte) (int, error) {
	n, err := h.TransferSize()
	if err != nil {
		return 0, err
	}
	if len(dst) < n {
		return 0, ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[offMagic:], h.Magic)
	binary.LittleEndian.PutUint32(dst[offID:], h.ID)
	binary.LittleEndian.PutUint32(dst[offType:], uint32(h.Type))
	binary.LittleEndian.PutUint16(dst[offChannel:], h.Channel)
	binary.LittleEndian.PutUint32(dst[offSize:], h.Size)
	binary.LittleEndian.PutUint32(dst[offTimeout:], h.Timeout)
	if n > HeaderCoreSize {
		copy(dst[HeaderCoreSize:n], h.ControlData[:n-HeaderCoreSize])
	}
	return n, nil
}

// Decode parses the header core from src. Magic is not checked here;
// callers use Valid. Control data is left untouched: it is fetched by the
// consumer of the event, not by the header reader.
func (h *Header) Decode(src []byte) error {
	if len(src) < HeaderCoreSize {
		return ErrShortBuffer
	}
	h.Magic = binary.LittleEndian.Uint32(src[offMagic:])
	h.ID = binary.LittleEndian.Uint32(src[offID:])
	h.Type = EventType(binary.LittleEndian.Uint32(src[offType:]))
	h.Channel = binary.LittleEndian.Uint16(src[offChannel:])
	h.Size = binary.LittleEndian.Uint32(src[offSize:])
	h.Timeout = binary.LittleEndian.Uint32(src[offTimeout:])
	return nil
}

// DecodeControlData copies the inline control data of a WRITE_CONTROL
// transfer (src holds the whole transfer) into the header.
func (h *Header) DecodeControlData(src []byte) error {
	n, err := h.TransferSize()
	if err != nil {
		return err
	}
	if len(src) < n {
		return ErrShortBuffer
	}
	copy(h.ControlData[:], src[HeaderCoreSize:n])
	return nil
}

// String renders the header for logs and the CLI decoder.
func (h *Header) String() string {
	return fmt.Sprintf("magic=0x%08x id=0x%x type=%s chan=0x%x size=%d timeout=%d",
		h.Magic, h.ID, h.Type, h.Channel, h.Size, h.Timeout)
}
