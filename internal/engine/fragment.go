package engine

import (
	"context"
	"time"

	v3codec "github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// Options bounds one command's retry budget and per-attempt timing; the
// zero value is never used directly, see protocol.ConfigFor.
type Options struct {
	MaxTries int
	Timeout  time.Duration
	Recheck  time.Duration
}

func (o Options) withDefaults(cfg protocol.Config) Options {
	if o.MaxTries == 0 {
		o.MaxTries = 3
	}
	if o.Timeout == 0 {
		o.Timeout = cfg.AckTimeout
	}
	if o.Recheck == 0 {
		o.Recheck = cfg.RecheckPeriod
	}
	return o
}

// SendCommand fragments one logical v3 command, retrying each frame's
// write/ack exchange up to opts.MaxTries. A non-retryable error
// short-circuits the remaining budget; the first error seen is the one
// returned once the budget is exhausted.
func SendCommand(ctx context.Context, tr transport.Transport, rawData, protoData []byte, seq uint16, opts Options) error {
	cfg := protocol.V3
	opts = opts.withDefaults(cfg)

	frames, err := v3codec.EncodePacket(rawData, protoData, seq, protocol.PacketTypeCommand)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		if err := writeWithRetry(ctx, tr, frame, seq, []protocol.PacketType{protocol.PacketTypeCmdAck}, opts); err != nil {
			return err
		}
	}
	return nil
}

func writeWithRetry(ctx context.Context, tr transport.Transport, frame []byte, seq uint16, expected []protocol.PacketType, opts Options) error {
	var firstErr error
	for attempt := 0; attempt < opts.MaxTries; attempt++ {
		_, err := WriteCommand(ctx, tr, frame, seq, expected, opts.Timeout, opts.Recheck)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if !deviceerrors.CanRetry(err) {
			return firstErr
		}
	}
	return firstErr
}

// CommandOutput is the result of reassembling a v3 CMD_OUTPUT_REQ exchange.
// IsStatus is set when the device answered with STATUS instead of output,
// in which case Status carries the decoded payload and ProtoData/RawData
// are empty.
type CommandOutput struct {
	ProtoData []byte
	RawData   []byte
	IsStatus  bool
	Status    v3codec.Status
}

// GetCommandOutput drives the inbound assembly loop for a v3 command's
// reply: it requests fragments by index until the device's declared total
// is reached, storing each fragment at its reported position so
// out-of-order arrivals still reassemble correctly.
func GetCommandOutput(ctx context.Context, tr transport.Transport, seq uint16, opts Options) (CommandOutput, error) {
	cfg := protocol.V3
	opts = opts.withDefaults(cfg)

	totalPackets := uint16(1)
	currentPacketNo := uint16(1)
	dataList := make(map[uint16][]byte)

	for currentPacketNo <= totalPackets {
		reqFrames, err := v3codec.EncodePacket([]byte{byte(currentPacketNo)}, nil, seq, protocol.PacketTypeCmdOutputReq)
		if err != nil {
			return CommandOutput{}, err
		}

		var reply v3codec.Frame
		var writeErr error
		for attempt := 0; attempt < opts.MaxTries; attempt++ {
			reply, writeErr = WriteCommand(ctx, tr, reqFrames[0], seq,
				[]protocol.PacketType{protocol.PacketTypeCmdOutput, protocol.PacketTypeStatus}, opts.Timeout, opts.Recheck)
			if writeErr == nil {
				break
			}
			if !deviceerrors.CanRetry(writeErr) {
				return CommandOutput{}, writeErr
			}
		}
		if writeErr != nil {
			return CommandOutput{}, writeErr
		}

		if reply.PacketType == protocol.PacketTypeStatus {
			_, rawData, err := v3codec.DecodePayload(reply.Payload)
			if err != nil {
				return CommandOutput{}, err
			}
			status, err := v3codec.DecodeStatus(rawData)
			if err != nil {
				return CommandOutput{}, err
			}
			return CommandOutput{IsStatus: true, Status: status}, nil
		}

		// Each fragment's Payload is a raw chunk of one logical v3 payload
		// (see EncodePacket's chunking); only the full concatenation below
		// is a well-formed <proto_len><raw_len>... structure.
		dataList[reply.CurrentPacketNo] = append([]byte{}, reply.Payload...)
		totalPackets = reply.TotalPackets
		currentPacketNo = reply.CurrentPacketNo + 1
	}

	assembled := make([]byte, 0)
	for i := uint16(1); i <= totalPackets; i++ {
		assembled = append(assembled, dataList[i]...)
	}
	protoData, rawData, err := v3codec.DecodePayload(assembled)
	if err != nil {
		return CommandOutput{}, err
	}
	return CommandOutput{ProtoData: protoData, RawData: rawData}, nil
}

// GetStatus requests the device's current STATUS using the reserved
// sequence number 0xFFFF.
func GetStatus(ctx context.Context, tr transport.Transport, opts Options) (v3codec.Status, error) {
	const statusSeq = 0xFFFF
	cfg := protocol.V3
	opts = opts.withDefaults(cfg)

	frames, err := v3codec.EncodePacket(nil, nil, statusSeq, protocol.PacketTypeStatusRequest)
	if err != nil {
		return v3codec.Status{}, err
	}

	reply, err := WriteCommand(ctx, tr, frames[0], statusSeq, []protocol.PacketType{protocol.PacketTypeStatus}, opts.Timeout, opts.Recheck)
	if err != nil {
		return v3codec.Status{}, err
	}
	_, rawData, err := v3codec.DecodePayload(reply.Payload)
	if err != nil {
		return v3codec.Status{}, err
	}
	return v3codec.DecodeStatus(rawData)
}

// SendAbort requests the device abort the command at seq. It raises
// ExecutingOtherCommand if the device's reported current_cmd_seq does not
// match the sequence being aborted.
func SendAbort(ctx context.Context, tr transport.Transport, seq uint16, opts Options) (v3codec.Status, error) {
	cfg := protocol.V3
	opts = opts.withDefaults(cfg)

	frames, err := v3codec.EncodePacket(nil, nil, seq, protocol.PacketTypeAbort)
	if err != nil {
		return v3codec.Status{}, err
	}

	reply, err := WriteCommand(ctx, tr, frames[0], seq, []protocol.PacketType{protocol.PacketTypeStatus}, opts.Timeout, opts.Recheck)
	if err != nil {
		return v3codec.Status{}, err
	}
	_, rawData, err := v3codec.DecodePayload(reply.Payload)
	if err != nil {
		return v3codec.Status{}, err
	}
	status, err := v3codec.DecodeStatus(rawData)
	if err != nil {
		return v3codec.Status{}, err
	}
	if status.CurrentCmdSeq != seq {
		return status, deviceerrors.ErrExecutingOtherCommand
	}
	return status, nil
}
