// Package transport defines the capability every byte-stream collaborator
// (serial, HID, USB bulk) must implement, plus the shared device-state
// derivation used by concrete adapters.
package transport

import (
	"context"

	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
)

// Transport is the narrow capability the engine and session layers depend
// on. A concrete implementation owns the underlying physical connection;
// this package never reaches into device-specific APIs directly.
type Transport interface {
	Connect(ctx context.Context) error
	Destroy() error
	IsConnected() bool

	// BeforeOperation/AfterOperation start and stop the background receive
	// pump for the duration of one top-level SDK operation.
	BeforeOperation() error
	AfterOperation() error

	// Send performs write-all semantics; it may fail mid-write if the
	// device disconnects.
	Send(ctx context.Context, data []byte) error

	// Receive pops the next frame-sized buffer from the receive pool,
	// returning ok=false when the pool is currently empty.
	Receive() (data []byte, ok bool)

	// Peek returns the queued buffers without consuming them, each tagged
	// with a pool-assigned id for diagnostics.
	Peek() []PeekedFrame

	GetDeviceState() protocol.DeviceState

	GetSequenceNumber() uint16
	GetNewSequenceNumber() uint16
}

// PeekedFrame is one buffer sitting in a Transport's receive pool.
type PeekedFrame struct {
	ID   uint64
	Data []byte
}

// DeviceStateFromPID derives the DeviceState from the low byte of a USB
// product id, per the enumeration convention the device firmware follows:
// 0x01=BOOTLOADER, 0x02=INITIAL, 0x03=FIRMWARE (treated here as MAIN).
func DeviceStateFromPID(pid uint16) protocol.DeviceState {
	switch pid & 0xFF {
	case 0x01:
		return protocol.DeviceStateBootloader
	case 0x02:
		return protocol.DeviceStateInitial
	default:
		return protocol.DeviceStateFirmware
	}
}
