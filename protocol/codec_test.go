package protocol_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/protocol"
)

func TestHeaderRoundTrip(t *testing.T) {
	in := protocol.Header{
		Magic:   protocol.HeaderMagic,
		ID:      7,
		Type:    protocol.WriteReq,
		Channel: 3,
		Size:    128,
		Timeout: 500,
	}
	buf := make([]byte, protocol.MaxHeaderSize)
	n, err := in.Encode(buf)
	require.NoError(t, err)
	require.Equal(t, protocol.HeaderCoreSize, n)

	var out protocol.Header
	require.NoError(t, out.Decode(buf[:n]))
	assert.Equal(t, in, out)
	assert.True(t, out.Valid())
}

func TestHeaderLayoutIsLittleEndianUnpadded(t *testing.T) {
	h := protocol.NewHeader(protocol.WriteReq, 0x0102, 4, 9)
	h.ID = 0x11223344
	buf := make([]byte, protocol.HeaderCoreSize)
	_, err := h.Encode(buf)
	require.NoError(t, err)

	assert.Equal(t, protocol.HeaderMagic, binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(0x11223344), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(protocol.WriteReq), binary.LittleEndian.Uint32(buf[8:]))
	assert.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(buf[12:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(buf[14:]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(buf[18:]))
}

func TestFlippedMagicByteInvalidatesHeader(t *testing.T) {
	h := protocol.NewHeader(protocol.WriteReq, 3, 128, 500)
	h.ID = 7
	buf := make([]byte, protocol.HeaderCoreSize)
	_, err := h.Encode(buf)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		corrupt := append([]byte(nil), buf...)
		corrupt[i] ^= 0xFF
		var out protocol.Header
		require.NoError(t, out.Decode(corrupt))
		assert.False(t, out.Valid(), "byte %d", i)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	var h protocol.Header
	err := h.Decode(make([]byte, protocol.HeaderCoreSize-1))
	assert.ErrorIs(t, err, protocol.ErrShortBuffer)
}

func TestWriteControlCarriesInlineData(t *testing.T) {
	h := protocol.NewHeader(protocol.WriteControlReq, 1, 5, 0)
	copy(h.ControlData[:], []byte{9, 8, 7, 6, 5})

	size, err := h.TransferSize()
	require.NoError(t, err)
	assert.Equal(t, protocol.HeaderCoreSize+5, size)

	buf := make([]byte, protocol.MaxHeaderSize)
	n, err := h.Encode(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7, 6, 5}, buf[protocol.HeaderCoreSize:n])

	var out protocol.Header
	require.NoError(t, out.Decode(buf[:n]))
	require.NoError(t, out.DecodeControlData(buf[:n]))
	assert.Equal(t, h.ControlData, out.ControlData)
}

func TestWriteControlTooLarge(t *testing.T) {
	h := protocol.NewHeader(protocol.WriteControlReq, 1, protocol.MaxControlDataSize+1, 0)
	_, err := h.TransferSize()
	assert.ErrorIs(t, err, protocol.ErrControlDataTooLarge)
}

func TestEncodeShortBuffer(t *testing.T) {
	h := protocol.NewHeader(protocol.PingReq, 0, 0, 0)
	_, err := h.Encode(make([]byte, 10))
	assert.ErrorIs(t, err, protocol.ErrShortBuffer)
}

func TestCarriesPayload(t *testing.T) {
	withPayload := []protocol.EventType{
		protocol.WriteReq,
		protocol.WriteVolatileReq,
		protocol.PassthruWriteReq,
		protocol.PassthruVolatileWriteReq,
	}
	for _, typ := range withPayload {
		assert.True(t, typ.CarriesPayload(), typ.String())
	}
	for _, typ := range []protocol.EventType{protocol.ReadReq, protocol.WriteControlReq, protocol.PingReq, protocol.WriteResp} {
		assert.False(t, typ.CarriesPayload(), typ.String())
	}
}

func TestEventTypeClassification(t *testing.T) {
	assert.True(t, protocol.PassthruReadToBufferReq.IsRequest())
	assert.False(t, protocol.PassthruReadToBufferReq.IsResponse())
	assert.True(t, protocol.WriteResp.IsResponse())
	assert.Equal(t, protocol.EventType(0x10), protocol.WriteResp)
	assert.Equal(t, "PING_RESP", protocol.PingResp.String())
	assert.Equal(t, "EVENT_TYPE(0x99)", protocol.EventType(0x99).String())
}
