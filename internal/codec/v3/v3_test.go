package v3

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		raw        []byte
		proto      []byte
		seq        uint16
		packetType protocol.PacketType
	}{
		{"both empty", nil, nil, 0, protocol.PacketTypeCommand},
		{"proto only", nil, []byte("hello world"), 7, protocol.PacketTypeCommand},
		{"raw only", []byte{0x01, 0x02, 0x03}, nil, 0xFFFF, protocol.PacketTypeStatusRequest},
		{"both", []byte{0xDE, 0xAD}, []byte{0xBE, 0xEF}, 42, protocol.PacketTypeCmdOutput},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			frames, err := EncodePacket(c.raw, c.proto, c.seq, c.packetType)
			require.NoError(t, err)
			require.NotEmpty(t, frames)

			var wire []byte
			for _, f := range frames {
				wire = append(wire, f...)
			}

			decoded := DecodeFrames(wire)
			require.Len(t, decoded, len(frames))

			var payload []byte
			for _, f := range decoded {
				assert.True(t, f.OK(), "frame errors: %v", f.ErrorList)
				assert.Equal(t, c.seq, f.SequenceNo)
				assert.Equal(t, c.packetType, f.PacketType)
				payload = append(payload, f.Payload...)
			}

			gotProto, gotRaw, err := DecodePayload(payload)
			require.NoError(t, err)
			assert.Equal(t, c.proto, normalize(gotProto))
			assert.Equal(t, c.raw, normalize(gotRaw))
		})
	}
}

func normalize(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func TestEncodeEmptyPayloadProducesSingleFrame(t *testing.T) {
	frames, err := EncodePacket(nil, nil, 5, protocol.PacketTypeStatusRequest)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	decoded := DecodeFrames(frames[0])
	require.Len(t, decoded, 1)
	assert.Equal(t, uint16(1), decoded[0].CurrentPacketNo)
	assert.Equal(t, uint16(1), decoded[0].TotalPackets)
	assert.Equal(t, uint8(0), decoded[0].PayloadLength)
}

func TestEncodeMultiFrameSplitsByChunkSize(t *testing.T) {
	proto := make([]byte, 120)
	for i := range proto {
		proto[i] = byte(i)
	}
	frames, err := EncodePacket(nil, proto, 1, protocol.PacketTypeCommand)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestDecodeFramesStopsOnTruncatedTrailer(t *testing.T) {
	frames, err := EncodePacket(nil, []byte("ok"), 1, protocol.PacketTypeCommand)
	require.NoError(t, err)
	truncated := frames[0][:len(frames[0])-1]

	decoded := DecodeFrames(truncated)
	assert.Empty(t, decoded)
}

func TestDecodeFramesFlagsCRCMismatch(t *testing.T) {
	frames, err := EncodePacket(nil, []byte("ok"), 1, protocol.PacketTypeCommand)
	require.NoError(t, err)
	corrupted := append([]byte{}, frames[0]...)
	corrupted[len(corrupted)-1] ^= 0xFF

	decoded := DecodeFrames(corrupted)
	require.Len(t, decoded, 1)
	assert.Contains(t, decoded[0].ErrorList, "invalid crc")
}

func TestDecodeMultipleFramesInOneBuffer(t *testing.T) {
	f1, err := EncodePacket(nil, []byte("a"), 1, protocol.PacketTypeCommand)
	require.NoError(t, err)
	f2, err := EncodePacket(nil, []byte("b"), 2, protocol.PacketTypeCommand)
	require.NoError(t, err)

	var buf []byte
	buf = append(buf, f1[0]...)
	buf = append(buf, f2[0]...)

	decoded := DecodeFrames(buf)
	require.Len(t, decoded, 2)
	assert.Equal(t, uint16(1), decoded[0].SequenceNo)
	assert.Equal(t, uint16(2), decoded[1].SequenceNo)
}

func TestDecodeStatusScenarioB(t *testing.T) {
	raw := make([]byte, 7)
	raw[0] = 0x23
	raw[1] = 0
	binary.BigEndian.PutUint16(raw[2:4], 50)
	raw[4] = 7
	binary.BigEndian.PutUint16(raw[5:7], 132)

	status, err := DecodeStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0x23), status.DeviceState)
	assert.False(t, status.AbortDisabled)
	assert.Equal(t, uint16(50), status.CurrentCmdSeq)
	assert.Equal(t, byte(7), status.CmdState)
	assert.Equal(t, uint16(132), status.FlowStatus)
}

func TestRejectReasonMessages(t *testing.T) {
	assert.Equal(t, "Invalid sequence number", RejectInvalidSequenceNo.Message())
	assert.Equal(t, "Unknown reject reason", RejectReason(200).Message())
}
