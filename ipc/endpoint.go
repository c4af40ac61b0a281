// File: ipc/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ipc

import (
	"context"
	"encoding/binary"
	"time"
)

// HandleSize is the wire size of a handle message.
const HandleSize = 4

// Endpoint is the read side of a local inter-process channel set.
type Endpoint interface {
	// Read pops one message from channel. volatile selects the data stream;
	// otherwise a handle message is read. Returns api.ErrNoData (wrapped
	// or bare) when nothing arrives within timeout.
	Read(ctx context.Context, swDeviceID uint32, channel uint16, buf []byte, volatile bool, timeout time.Duration) (int, error)
}

// EncodeHandle renders a handle message.
func EncodeHandle(handle uint32) []byte {
	b := make([]byte, HandleSize)
	binary.LittleEndian.PutUint32(b, handle)
	return b
}

// DecodeHandle parses a handle message.
func DecodeHandle(b []byte) (uint32, bool) {
	if len(b) < HandleSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
