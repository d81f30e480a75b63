// Package bootloader implements the xmodem-STM packet variant used while
// the device is running its bootloader and receiving a firmware image.
package bootloader

import (
	"encoding/binary"
	"fmt"

	"github.com/ytemiloluwa/device-sdk-go/internal/bitutil"
)

const (
	startOfFrame  = 0x01
	endOfTransmission = 0x04
	chunkSize     = 128
)

// ResponseByte is the single-byte reply the device sends after each data
// packet or after the abort/handshake bytes.
type ResponseByte byte

const (
	ResponseACK              ResponseByte = 0x06
	ResponseHandshake        ResponseByte = 0x43 // ASCII 'C'
	ResponseAbortAck         ResponseByte = 0x18
	ResponseFirmwareSizeLimit ResponseByte = 0x07
	ResponseWrongHardwareVer ResponseByte = 0x08
	ResponseLowerFirmwareVer ResponseByte = 0x09
	ResponseWrongMagicNumber ResponseByte = 0x0A
	ResponseSignatureInvalid ResponseByte = 0x0B
	ResponseFlashWriteError  ResponseByte = 0x0C
	ResponseFlashCRCMismatch ResponseByte = 0x0D
	ResponseFlashTimeout     ResponseByte = 0x0E
	ResponseFlashNACK        ResponseByte = 0x15
)

// EncodeSTMXModem splits data into 128-byte chunks (padded with 0xFF),
// prefixes each with SOF, a mod-255 packet index and its XOR-0xFF
// complement, and trails a CRC-16 computed over the padded chunk alone. An
// EOT terminator packet is appended as the final element.
func EncodeSTMXModem(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("bootloader: data cannot be empty")
	}

	rounds := (len(data) + chunkSize - 1) / chunkSize
	packets := make([][]byte, 0, rounds+1)

	for i := 1; i <= rounds; i++ {
		start := (i - 1) * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, chunkSize)
		for j := range chunk {
			chunk[j] = 0xFF
		}
		copy(chunk, data[start:end])

		n := byte(i % 255)
		packet := make([]byte, 0, 3+chunkSize+2)
		packet = append(packet, startOfFrame, n, n^0xFF)
		packet = append(packet, chunk...)

		crc := bitutil.CRC16(chunk)
		packet = binary.BigEndian.AppendUint16(packet, crc)

		packets = append(packets, packet)
	}
	packets = append(packets, []byte{endOfTransmission})
	return packets, nil
}
