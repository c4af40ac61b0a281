// File: protocol/types.go
// Author: momentics <momentics@gmail.com>
//
// Event type catalogue for the xlink wire protocol.

package protocol

import "fmt"

// EventType is the request or response kind carried in a header.
type EventType uint32

// Request types.
const (
	WriteReq EventType = iota
	WriteVolatileReq
	ReadReq
	ReadToBufferReq
	ReleaseReq
	OpenChannelReq
	CloseChannelReq
	PingReq
	WriteControlReq
	DataReadyCallbackReq
	DataConsumedCallbackReq
	PassthruWriteReq
	PassthruVolatileWriteReq
	PassthruReadReq
	PassthruReadToBufferReq
	reqLast
)

// Response types mirror the requests at 0x10.
const (
	WriteResp EventType = iota + 0x10
	WriteVolatileResp
	ReadResp
	ReadToBufferResp
	ReleaseResp
	OpenChannelResp
	CloseChannelResp
	PingResp
	WriteControlResp
	DataReadyCallbackResp
	DataConsumedCallbackResp
	PassthruWriteResp
	PassthruVolatileWriteResp
	PassthruReadResp
	PassthruReadToBufferResp
	respLast
)

var typeNames = map[EventType]string{
	WriteReq:                 "WRITE_REQ",
	WriteVolatileReq:         "WRITE_VOLATILE_REQ",
	ReadReq:                  "READ_REQ",
	ReadToBufferReq:          "READ_TO_BUFFER_REQ",
	ReleaseReq:               "RELEASE_REQ",
	OpenChannelReq:           "OPEN_CHANNEL_REQ",
	CloseChannelReq:          "CLOSE_CHANNEL_REQ",
	PingReq:                  "PING_REQ",
	WriteControlReq:          "WRITE_CONTROL_REQ",
	DataReadyCallbackReq:     "DATA_READY_CALLBACK_REQ",
	DataConsumedCallbackReq:  "DATA_CONSUMED_CALLBACK_REQ",
	PassthruWriteReq:         "PASSTHRU_WRITE_REQ",
	PassthruVolatileWriteReq: "PASSTHRU_VOLATILE_WRITE_REQ",
	PassthruReadReq:          "PASSTHRU_READ_REQ",
	PassthruReadToBufferReq:  "PASSTHRU_READ_TO_BUFFER_REQ",

	WriteResp:                 "WRITE_RESP",
	WriteVolatileResp:         "WRITE_VOLATILE_RESP",
	ReadResp:                  "READ_RESP",
	ReadToBufferResp:          "READ_TO_BUFFER_RESP",
	ReleaseResp:               "RELEASE_RESP",
	OpenChannelResp:           "OPEN_CHANNEL_RESP",
	CloseChannelResp:          "CLOSE_CHANNEL_RESP",
	PingResp:                  "PING_RESP",
	WriteControlResp:          "WRITE_CONTROL_RESP",
	DataReadyCallbackResp:     "DATA_READY_CALLBACK_RESP",
	DataConsumedCallbackResp:  "DATA_CONSUMED_CALLBACK_RESP",
	PassthruWriteResp:         "PASSTHRU_WRITE_RESP",
	PassthruVolatileWriteResp: "PASSTHRU_VOLATILE_WRITE_RESP",
	PassthruReadResp:          "PASSTHRU_READ_RESP",
	PassthruReadToBufferResp:  "PASSTHRU_READ_TO_BUFFER_RESP",
}

func (t EventType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EVENT_TYPE(0x%x)", uint32(t))
}

// IsRequest reports whether t is a known request type.
func (t EventType) IsRequest() bool {
	return t < reqLast
}

// IsResponse reports whether t is a known response type.
func (t EventType) IsResponse() bool {
	return t >= WriteResp && t < respLast
}

// CarriesPayload reports whether a payload of header.Size bytes follows the
// header as a second transfer.
func (t EventType) CarriesPayload() bool {
	switch t {
	case WriteReq, WriteVolatileReq, PassthruWriteReq, PassthruVolatileWriteReq:
		return true
	}
	return false
}

// CarriesControlData reports whether header.Size bytes of control data are
// sent inline, in the same transfer as the header.
func (t EventType) CarriesControlData() bool {
	return t == WriteControlReq
}
