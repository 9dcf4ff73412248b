package frame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/serialtransport/pkg/frame"
)

func TestDataFrameRoundTrip(t *testing.T) {
	f := frame.NewDataFrame(frame.TypeData, 3, 42, []byte("hello"))
	f.Header.Sync = 7
	raw := f.MarshalBinary()

	header, err := frame.UnmarshalDataHeader(raw[:frame.DataHeaderSize])
	require.NoError(t, err)
	assert.True(t, header.HeaderCRCValid(raw[:frame.DataHeaderSize]))
	assert.Equal(t, frame.TypeData, header.PacketType)
	assert.Equal(t, uint8(7), header.Sync)
	assert.Equal(t, uint8(3), header.Channel)
	assert.Equal(t, uint8(42), header.PacketID)
	assert.Equal(t, uint16(5), header.PayloadSize)

	payload := raw[frame.DataHeaderSize : frame.DataHeaderSize+int(header.PayloadSize)]
	assert.Equal(t, []byte("hello"), payload)

	footer, err := frame.UnmarshalDataFooter(raw[frame.DataHeaderSize+int(header.PayloadSize):])
	require.NoError(t, err)
	assert.Equal(t, f.Footer.Checksum, footer.Checksum)
}

func TestPeekPacketTypeRejectsGarbage(t *testing.T) {
	_, ok := frame.PeekPacketType([]byte{0x00, 0x00})
	assert.False(t, ok)
}

func TestPeekPacketTypeAllFourTypes(t *testing.T) {
	for _, pt := range []frame.PacketType{frame.TypeResponse, frame.TypeData, frame.TypeDataNack, frame.TypeDataFAF} {
		h := frame.DataHeader{PacketType: pt}
		raw := h.MarshalBinary()
		got, ok := frame.PeekPacketType(raw[:2])
		require.True(t, ok)
		assert.Equal(t, pt, got)
	}
}

func TestResponseFrameRoundTrip(t *testing.T) {
	r := frame.NewResponseFrame(frame.ResponseNACK, 9)
	raw := r.MarshalBinary()
	assert.Len(t, raw, frame.ResponseSize)

	decoded, err := frame.UnmarshalResponseFrame(raw)
	require.NoError(t, err)
	assert.True(t, decoded.CRCValid(raw))
	assert.Equal(t, frame.ResponseNACK, decoded.Kind)
	assert.Equal(t, uint8(9), decoded.SyncID)
}

func TestResponseFrameCorruptedChecksum(t *testing.T) {
	r := frame.NewResponseFrame(frame.ResponseACK, 1)
	raw := r.MarshalBinary()
	raw[1] ^= 0x01 // flip a token bit, corrupting the checksum coverage

	decoded, err := frame.UnmarshalResponseFrame(raw)
	require.NoError(t, err)
	assert.False(t, decoded.CRCValid(raw))
}

func TestHeaderCRCDetectsCorruption(t *testing.T) {
	f := frame.NewDataFrame(frame.TypeDataFAF, 1, 1, []byte{0x01})
	raw := f.MarshalBinary()
	raw[2] ^= 0xFF // corrupt sync byte after checksum computed

	header, err := frame.UnmarshalDataHeader(raw[:frame.DataHeaderSize])
	require.NoError(t, err)
	assert.False(t, header.HeaderCRCValid(raw[:frame.DataHeaderSize]))
}
