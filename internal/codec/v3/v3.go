// Package v3 implements the framed, typed-packet wire codec: the primary
// packet generation spoken by current device firmware.
package v3

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ytemiloluwa/device-sdk-go/internal/bitutil"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
)

var startOfFrame = []byte{0x55, 0x55}

const (
	headerSize = 2 + 2 + 2 + 1 + 4 + 1 // current, total, seq, type, timestamp, payload_length
	chunkSize  = 48
)

// Frame is a single decoded v3 packet. ErrorList is non-empty when the CRC
// or ordering invariants did not hold; callers decide whether to discard or
// still inspect such a frame.
type Frame struct {
	CurrentPacketNo uint16
	TotalPackets    uint16
	SequenceNo      uint16
	PacketType      protocol.PacketType
	Timestamp       uint32
	PayloadLength   uint8
	Payload         []byte
	CRC             uint16
	ErrorList       []string
}

func (f Frame) OK() bool { return len(f.ErrorList) == 0 }

// composePayload builds <proto_len:1B><raw_len:1B><proto_bytes><raw_bytes>.
// Both lengths are bounded to a byte per the protocol's fixed-width field.
func composePayload(protoData, rawData []byte) ([]byte, error) {
	if len(protoData) == 0 && len(rawData) == 0 {
		return nil, nil
	}
	if len(protoData) > 0xFF {
		return nil, fmt.Errorf("v3: proto payload too large: %d bytes", len(protoData))
	}
	if len(rawData) > 0xFF {
		return nil, fmt.Errorf("v3: raw payload too large: %d bytes", len(rawData))
	}
	out := make([]byte, 0, 2+len(protoData)+len(rawData))
	out = append(out, byte(len(protoData)), byte(len(rawData)))
	out = append(out, protoData...)
	out = append(out, rawData...)
	return out, nil
}

// DecodePayload splits a v3 payload back into its proto and raw components.
// An empty payload decodes to empty proto and raw components.
func DecodePayload(payload []byte) (protoData, rawData []byte, err error) {
	if len(payload) == 0 {
		return nil, nil, nil
	}
	if len(payload) < 2 {
		return nil, nil, fmt.Errorf("v3: payload too short to contain length prefix")
	}
	protoLen := int(payload[0])
	rawLen := int(payload[1])
	offset := 2
	if offset+protoLen > len(payload) {
		return nil, nil, fmt.Errorf("v3: declared proto length exceeds payload")
	}
	protoData = payload[offset : offset+protoLen]
	offset += protoLen
	if offset+rawLen > len(payload) {
		return nil, nil, fmt.Errorf("v3: declared raw length exceeds payload")
	}
	rawData = payload[offset : offset+rawLen]
	return protoData, rawData, nil
}

func buildCommData(currentPacketNo, totalPackets, seq uint16, packetType protocol.PacketType, timestamp uint32, payloadLength uint8, payload []byte) []byte {
	buf := make([]byte, headerSize, headerSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], currentPacketNo)
	binary.BigEndian.PutUint16(buf[2:4], totalPackets)
	binary.BigEndian.PutUint16(buf[4:6], seq)
	buf[6] = byte(packetType)
	binary.BigEndian.PutUint32(buf[7:11], timestamp)
	buf[11] = payloadLength
	return append(buf, payload...)
}

// EncodePacket produces the ordered list of on-wire frames for one logical
// command. At least one frame is always returned, even for an empty
// payload. packetType must be > 0.
func EncodePacket(rawData, protoData []byte, seq uint16, packetType protocol.PacketType) ([][]byte, error) {
	if packetType == 0 {
		return nil, fmt.Errorf("v3: packet type cannot be zero")
	}
	payload, err := composePayload(protoData, rawData)
	if err != nil {
		return nil, err
	}

	rounds := (len(payload) + chunkSize - 1) / chunkSize
	if len(payload) == 0 {
		rounds = 1
	}

	frames := make([][]byte, 0, rounds)
	for i := 1; i <= rounds; i++ {
		start := (i - 1) * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		timestamp := uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
		commData := buildCommData(uint16(i), uint16(rounds), seq, packetType, timestamp, uint8(len(chunk)), chunk)

		crc := bitutil.CRC16(commData)
		frame := make([]byte, 0, len(startOfFrame)+2+len(commData))
		frame = append(frame, startOfFrame...)
		frame = binary.BigEndian.AppendUint16(frame, crc)
		frame = append(frame, commData...)
		frames = append(frames, frame)
	}
	return frames, nil
}

// DecodeFrames scans data for every well-formed v3 frame it can find.
// Decoding is defensive: a truncated trailing frame stops the scan instead
// of erroring, and CRC or ordering violations are reported in ErrorList
// rather than aborting the whole buffer.
func DecodeFrames(data []byte) []Frame {
	var frames []Frame
	pos := 0
	for pos < len(data) {
		idx := bytes.Index(data[pos:], startOfFrame)
		if idx == -1 {
			break
		}
		offset := pos + idx + len(startOfFrame)

		if offset+2 > len(data) {
			break
		}
		crcField := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2

		if offset+2 > len(data) {
			break
		}
		currentPacketNo := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2

		if offset+2 > len(data) {
			break
		}
		totalPackets := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2

		if offset+2 > len(data) {
			break
		}
		seq := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2

		if offset+1 > len(data) {
			break
		}
		packetType := protocol.PacketType(data[offset])
		offset++

		if offset+4 > len(data) {
			break
		}
		timestamp := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4

		if offset+1 > len(data) {
			break
		}
		payloadLength := data[offset]
		offset++

		if int(payloadLength) > len(data)-offset {
			break
		}
		var payload []byte
		if payloadLength != 0 {
			payload = data[offset : offset+int(payloadLength)]
			offset += int(payloadLength)
		}

		commData := buildCommData(currentPacketNo, totalPackets, seq, packetType, timestamp, payloadLength, payload)
		actualCRC := bitutil.CRC16(commData)

		var errs []string
		if currentPacketNo > totalPackets {
			errs = append(errs, "current_packet_number is greater than total_packet_number")
		}
		if actualCRC != crcField {
			errs = append(errs, "invalid crc")
		}

		frames = append(frames, Frame{
			CurrentPacketNo: currentPacketNo,
			TotalPackets:    totalPackets,
			SequenceNo:      seq,
			PacketType:      packetType,
			Timestamp:       timestamp,
			PayloadLength:   payloadLength,
			Payload:         payload,
			CRC:             crcField,
			ErrorList:       errs,
		})
		pos = offset
	}
	return frames
}
