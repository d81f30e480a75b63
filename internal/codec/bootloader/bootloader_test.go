package bootloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSTMXModemSingleChunk(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	packets, err := EncodeSTMXModem(data)
	require.NoError(t, err)
	require.Len(t, packets, 2) // one data packet + EOT

	dataPacket := packets[0]
	assert.Equal(t, byte(startOfFrame), dataPacket[0])
	assert.Equal(t, byte(1), dataPacket[1])
	assert.Equal(t, byte(1^0xFF), dataPacket[2])
	assert.Len(t, dataPacket, 3+chunkSize+2)

	chunk := dataPacket[3 : 3+chunkSize]
	assert.Equal(t, data, chunk[:len(data)])
	for _, b := range chunk[len(data):] {
		assert.Equal(t, byte(0xFF), b)
	}

	eot := packets[len(packets)-1]
	assert.Equal(t, []byte{endOfTransmission}, eot)
}

func TestEncodeSTMXModemMultiChunkPacketIndexWraps(t *testing.T) {
	data := make([]byte, chunkSize*3)
	packets, err := EncodeSTMXModem(data)
	require.NoError(t, err)
	require.Len(t, packets, 4) // 3 data packets + EOT

	for i, p := range packets[:3] {
		expectedN := byte((i + 1) % 255)
		assert.Equal(t, expectedN, p[1])
		assert.Equal(t, expectedN^0xFF, p[2])
	}
}

func TestEncodeSTMXModemRejectsEmpty(t *testing.T) {
	_, err := EncodeSTMXModem(nil)
	assert.Error(t, err)
}

func TestResponseByteConstants(t *testing.T) {
	assert.Equal(t, ResponseByte(0x06), ResponseACK)
	assert.Equal(t, ResponseByte(0x15), ResponseFlashNACK)
}
