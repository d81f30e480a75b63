package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v3codec "github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport/loopback"
)

func autoAck(tr *loopback.Transport, replyType protocol.PacketType) {
	tr.SendHook = func(data []byte) error {
		frames := v3codec.DecodeFrames(data)
		if len(frames) == 0 {
			return nil
		}
		replyFrames, err := v3codec.EncodePacket(nil, nil, frames[0].SequenceNo, replyType)
		if err != nil {
			return err
		}
		tr.Feed(replyFrames[0])
		return nil
	}
}

func TestWriteCommandSucceedsOnMatchingAck(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	autoAck(tr, protocol.PacketTypeCmdAck)

	frames, err := v3codec.EncodePacket([]byte("hi"), nil, 7, protocol.PacketTypeCommand)
	require.NoError(t, err)

	reply, err := WriteCommand(context.Background(), tr, frames[0], 7,
		[]protocol.PacketType{protocol.PacketTypeCmdAck}, 200*time.Millisecond, 2*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, protocol.PacketTypeCmdAck, reply.PacketType)
}

func TestWriteCommandAcceptsStatusRegardlessOfSequence(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	tr.SendHook = func(data []byte) error {
		replyFrames, err := v3codec.EncodePacket(nil, nil, 0xFFFF, protocol.PacketTypeStatus)
		if err != nil {
			return err
		}
		tr.Feed(replyFrames[0])
		return nil
	}

	frames, err := v3codec.EncodePacket(nil, nil, 7, protocol.PacketTypeCommand)
	require.NoError(t, err)

	reply, err := WriteCommand(context.Background(), tr, frames[0], 7,
		[]protocol.PacketType{protocol.PacketTypeCmdAck, protocol.PacketTypeStatus}, 200*time.Millisecond, 2*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, protocol.PacketTypeStatus, reply.PacketType)
}

func TestWriteCommandTimesOutWhenConnected(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	frames, err := v3codec.EncodePacket(nil, nil, 7, protocol.PacketTypeCommand)
	require.NoError(t, err)

	_, err = WriteCommand(context.Background(), tr, frames[0], 7,
		[]protocol.PacketType{protocol.PacketTypeCmdAck}, 20*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, deviceerrors.ErrReadTimeout)
}

func TestWriteCommandReportsConnectionClosedWhenSendFails(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	tr.Disconnect()

	frames, err := v3codec.EncodePacket(nil, nil, 7, protocol.PacketTypeCommand)
	require.NoError(t, err)

	_, err = WriteCommand(context.Background(), tr, frames[0], 7,
		[]protocol.PacketType{protocol.PacketTypeCmdAck}, 20*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, deviceerrors.ErrConnectionClosed)
}

func feedReject(tr *loopback.Transport, seq uint16, reason v3codec.RejectReason) {
	tr.SendHook = func(data []byte) error {
		replyFrames, err := v3codec.EncodePacket([]byte{byte(reason)}, nil, seq, protocol.PacketTypeError)
		if err != nil {
			return err
		}
		tr.Feed(replyFrames[0])
		return nil
	}
}

func TestWriteCommandRaisesProcessAbortedOnSequenceMismatchReject(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	const seq = 7
	feedReject(tr, seq, v3codec.RejectInvalidSequenceNo)

	frames, err := v3codec.EncodePacket(nil, nil, seq, protocol.PacketTypeCommand)
	require.NoError(t, err)

	_, err = WriteCommand(context.Background(), tr, frames[0], seq,
		[]protocol.PacketType{protocol.PacketTypeCmdAck}, 200*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, deviceerrors.ErrProcessAborted)
}

func TestWriteCommandRaisesWriteRejectedOnOtherReject(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	const seq = 7
	feedReject(tr, seq, v3codec.RejectChecksumError)

	frames, err := v3codec.EncodePacket(nil, nil, seq, protocol.PacketTypeCommand)
	require.NoError(t, err)

	_, err = WriteCommand(context.Background(), tr, frames[0], seq,
		[]protocol.PacketType{protocol.PacketTypeCmdAck}, 200*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, deviceerrors.ErrWriteRejected)
}
