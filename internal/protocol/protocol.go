// Package protocol holds the wire-level constants that distinguish the
// three packet generations a device may speak: v1 and v2 (legacy,
// byte-stuffed) and v3 (framed, typed packets).
package protocol

import "time"

// Generation identifies a packet dialect.
type Generation int

const (
	GenerationV1 Generation = iota + 1
	GenerationV2
	GenerationV3
)

func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	case GenerationV3:
		return "v3"
	default:
		return "unknown"
	}
}

// Config holds the per-generation framing constants.
type Config struct {
	Generation     Generation
	StartOfFrame   []byte
	StuffingByte   byte
	AckByte        byte
	ChunkSize      int
	AckTimeout     time.Duration
	IdleTimeout    time.Duration
	CmdRespTimeout time.Duration
	RecheckPeriod  time.Duration
	IdleRecheck    time.Duration
}

// V1 is the original single-byte-stuffed legacy dialect.
var V1 = Config{
	Generation:    GenerationV1,
	StartOfFrame:  []byte{0xAA},
	StuffingByte:  0xAA,
	AckByte:       0x06,
	ChunkSize:     32 * 2,
	AckTimeout:    2000 * time.Millisecond,
	RecheckPeriod: 50 * time.Millisecond,
}

// V2 reuses v1's framing shape with a different stuffing byte.
var V2 = Config{
	Generation:    GenerationV2,
	StartOfFrame:  []byte{0x5A, 0x5A},
	StuffingByte:  0x5A,
	AckByte:       0x06,
	ChunkSize:     32 * 2,
	AckTimeout:    2000 * time.Millisecond,
	RecheckPeriod: 50 * time.Millisecond,
}

// V3 is the framed, typed-packet generation.
var V3 = Config{
	Generation:     GenerationV3,
	StartOfFrame:   []byte{0x55, 0x55},
	StuffingByte:   0x5A,
	AckByte:        0x06,
	ChunkSize:      48 * 2,
	AckTimeout:     2000 * time.Millisecond,
	IdleTimeout:    4000 * time.Millisecond,
	CmdRespTimeout: 2000 * time.Millisecond,
	RecheckPeriod:  2 * time.Millisecond,
	IdleRecheck:    200 * time.Millisecond,
}

// ConfigFor returns the framing constants for a generation.
func ConfigFor(g Generation) Config {
	switch g {
	case GenerationV1:
		return V1
	case GenerationV2:
		return V2
	case GenerationV3:
		return V3
	default:
		return V3
	}
}

// PacketType enumerates the v3 typed-packet kinds.
type PacketType byte

const (
	PacketTypeStatusRequest PacketType = 1
	PacketTypeCommand       PacketType = 2
	PacketTypeCmdOutputReq  PacketType = 3
	PacketTypeStatus        PacketType = 4
	PacketTypeCmdAck        PacketType = 5
	PacketTypeCmdOutput     PacketType = 6
	PacketTypeError         PacketType = 7
	PacketTypeAbort         PacketType = 8
)

// DeviceState models whether the attached device is currently running its
// bootloader or its main firmware, derived from the low byte of the USB PID.
type DeviceState int

const (
	DeviceStateBootloader DeviceState = iota
	DeviceStateFirmware
	DeviceStateInitial
)
