// Package legacy implements the v1 and v2 byte-stuffed xmodem-like packet
// generations spoken by older device firmware.
package legacy

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ytemiloluwa/device-sdk-go/internal/bitutil"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
)

const chunkSizeBytes = 32

// Command types reserved at this layer for flow control.
const (
	CommandAck  = 1
	CommandNack = 7
)

// Frame is a single decoded legacy packet.
type Frame struct {
	CommandType         uint32
	CurrentPacketNumber byte
	TotalPacket         byte
	DataChunk           []byte
	CRC                 uint16
	ErrorList           []string
}

func (f Frame) OK() bool { return len(f.ErrorList) == 0 }

func commandTypeWidth(gen protocol.Generation) int {
	if gen == protocol.GenerationV2 {
		return 4
	}
	return 1
}

func encodeCommandType(commandType uint32, gen protocol.Generation) []byte {
	width := commandTypeWidth(gen)
	buf := make([]byte, width)
	if width == 1 {
		buf[0] = byte(commandType)
		return buf
	}
	binary.BigEndian.PutUint32(buf, commandType)
	return buf
}

func decodeCommandType(data []byte, gen protocol.Generation) uint32 {
	width := commandTypeWidth(gen)
	if width == 1 {
		return uint32(data[0])
	}
	return binary.BigEndian.Uint32(data[:4])
}

// XModemEncode splits data into chunkSizeBytes frames, stamping each with a
// 1-byte current/total packet-number pair and a trailing CRC-16, then byte
// stuffs the whole comm-data-plus-CRC region before prepending the
// generation's header (SOF, command type, stuffed length).
func XModemEncode(data []byte, commandType uint32, gen protocol.Generation) ([][]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("legacy: data cannot be empty")
	}
	if gen != protocol.GenerationV1 && gen != protocol.GenerationV2 {
		return nil, fmt.Errorf("legacy: unsupported generation %s", gen)
	}
	cfg := protocol.ConfigFor(gen)

	rounds := (len(data) + chunkSizeBytes - 1) / chunkSizeBytes
	packets := make([][]byte, 0, rounds)

	for i := 1; i <= rounds; i++ {
		if i > 0xFF || rounds > 0xFF {
			return nil, fmt.Errorf("legacy: too many packets for a 1-byte packet index: %d", rounds)
		}
		start := (i - 1) * chunkSizeBytes
		end := start + chunkSizeBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]

		commData := append([]byte{byte(i), byte(rounds)}, chunk...)
		crc := bitutil.CRC16(commData)
		withCRC := binary.BigEndian.AppendUint16(append([]byte{}, commData...), crc)

		stuffed := bitutil.ByteStuff(withCRC, cfg.StuffingByte)

		header := append([]byte{}, cfg.StartOfFrame...)
		header = append(header, encodeCommandType(commandType, gen)...)
		if len(stuffed) > 0xFF {
			return nil, fmt.Errorf("legacy: stuffed packet too large: %d bytes", len(stuffed))
		}
		header = append(header, byte(len(stuffed)))

		packets = append(packets, append(header, stuffed...))
	}
	return packets, nil
}

// XModemDecode scans data for every well-formed legacy frame, unstuffing
// each declared-length region and recomputing its CRC.
func XModemDecode(data []byte, gen protocol.Generation) ([]Frame, error) {
	if gen != protocol.GenerationV1 && gen != protocol.GenerationV2 {
		return nil, fmt.Errorf("legacy: unsupported generation %s", gen)
	}
	cfg := protocol.ConfigFor(gen)
	cmdWidth := commandTypeWidth(gen)

	var frames []Frame
	pos := 0
	for pos < len(data) {
		idx := bytes.Index(data[pos:], cfg.StartOfFrame)
		if idx == -1 {
			break
		}
		offset := pos + idx + len(cfg.StartOfFrame)

		if offset+cmdWidth > len(data) {
			break
		}
		commandType := decodeCommandType(data[offset:offset+cmdWidth], gen)
		offset += cmdWidth

		if offset+1 > len(data) {
			break
		}
		dataSize := int(data[offset])
		offset++

		if offset+dataSize > len(data) {
			break
		}
		stuffed := data[offset : offset+dataSize]
		offset += dataSize

		unstuffed := bitutil.ByteUnstuff(stuffed, cfg.StuffingByte)
		if len(unstuffed) < 4 {
			pos = offset
			continue
		}

		currentPacketNumber := unstuffed[0]
		totalPacket := unstuffed[1]
		crcOffset := len(unstuffed) - 2
		dataChunk := unstuffed[2:crcOffset]
		crcField := binary.BigEndian.Uint16(unstuffed[crcOffset:])

		actualCRC := bitutil.CRC16(unstuffed[:crcOffset])

		var errs []string
		// ACK/NACK packets carry only a packet number and a zero total, so
		// the ordering check applies to data packets alone.
		isAckOrNack := commandType == CommandAck || commandType == CommandNack
		if !isAckOrNack && currentPacketNumber > totalPacket {
			errs = append(errs, "currentPacketNumber is greater than totalPacketNumber")
		}
		if len(unstuffed) > 2+chunkSizeBytes+2 {
			errs = append(errs, "invalid data size")
		}
		if actualCRC != crcField {
			errs = append(errs, "invalid crc")
		}

		frames = append(frames, Frame{
			CommandType:         commandType,
			CurrentPacketNumber: currentPacketNumber,
			TotalPacket:         totalPacket,
			DataChunk:           dataChunk,
			CRC:                 crcField,
			ErrorList:           errs,
		})
		pos = offset
	}
	return frames, nil
}

// CreateAckPacket builds a zero-payload ACK/NACK packet carrying only the
// requested packet-number acknowledgment.
func CreateAckPacket(commandType uint32, packetNumber byte, gen protocol.Generation) ([]byte, error) {
	if gen != protocol.GenerationV1 && gen != protocol.GenerationV2 {
		return nil, fmt.Errorf("legacy: unsupported generation %s", gen)
	}
	cfg := protocol.ConfigFor(gen)

	commData := []byte{packetNumber, 0x00, 0x00, 0x00, 0x00, 0x00}
	crc := bitutil.CRC16(commData)
	withCRC := binary.BigEndian.AppendUint16(append([]byte{}, commData...), crc)
	stuffed := bitutil.ByteStuff(withCRC, cfg.StuffingByte)

	header := append([]byte{}, cfg.StartOfFrame...)
	header = append(header, encodeCommandType(commandType, gen)...)
	header = append(header, byte(len(stuffed)))
	return append(header, stuffed...), nil
}
