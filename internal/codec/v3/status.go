package v3

import (
	"encoding/binary"
	"fmt"
)

// Status is the decoded payload of a v3 STATUS frame.
type Status struct {
	DeviceState     byte
	AbortDisabled   bool
	CurrentCmdSeq   uint16
	CmdState        byte
	FlowStatus      uint16
}

const statusPayloadSize = 1 + 1 + 2 + 1 + 2

// DecodeStatus parses the raw_data portion of a STATUS frame's payload.
func DecodeStatus(raw []byte) (Status, error) {
	if len(raw) < statusPayloadSize {
		return Status{}, fmt.Errorf("v3: status payload too short: %d bytes", len(raw))
	}
	return Status{
		DeviceState:   raw[0],
		AbortDisabled: raw[1] != 0,
		CurrentCmdSeq: binary.BigEndian.Uint16(raw[2:4]),
		CmdState:      raw[4],
		FlowStatus:    binary.BigEndian.Uint16(raw[5:7]),
	}, nil
}
