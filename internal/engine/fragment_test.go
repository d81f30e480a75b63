package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v3codec "github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport/loopback"
)

func testOpts() Options {
	return Options{MaxTries: 2, Timeout: 200 * time.Millisecond, Recheck: 2 * time.Millisecond}
}

func TestSendCommandSucceedsWithAutoAck(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	autoAck(tr, protocol.PacketTypeCmdAck)

	err := SendCommand(context.Background(), tr, nil, []byte("hello world"), 3, testOpts())
	require.NoError(t, err)
	assert.NotEmpty(t, tr.Sent)
}

func TestSendCommandFailsFastOnNonRetryableReject(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	feedReject(tr, 3, v3codec.RejectChecksumError)

	err := SendCommand(context.Background(), tr, nil, []byte("hello"), 3, testOpts())
	assert.Error(t, err)
	// Only one attempt per frame is made when the error is non-retryable...
	// actually WriteRejected is non-retryable, so exactly one send per frame.
	assert.Len(t, tr.Sent, 1)
}

// deviceOutputReply answers each CMD_OUTPUT_REQ frame with the
// pre-encoded wire frame for the fragment index the request asked for,
// mirroring a device replying to fragment requests out of sequence order.
func deviceOutputReply(tr *loopback.Transport, fragmentFrames map[byte][]byte) {
	tr.SendHook = func(data []byte) error {
		reqFrames := v3codec.DecodeFrames(data)
		if len(reqFrames) == 0 {
			return nil
		}
		_, rawData, err := v3codec.DecodePayload(reqFrames[0].Payload)
		if err != nil || len(rawData) == 0 {
			return nil
		}
		frame, ok := fragmentFrames[rawData[0]]
		if !ok {
			return nil
		}
		tr.Feed(frame)
		return nil
	}
}

func TestGetCommandOutputReassemblesMultiFrameReply(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	const seq = 9

	rawData := append(append([]byte{}, bytesOf('A', 30)...), bytesOf('B', 30)...)
	frames, err := v3codec.EncodePacket(rawData, nil, seq, protocol.PacketTypeCmdOutput)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	deviceOutputReply(tr, map[byte][]byte{1: frames[0], 2: frames[1]})

	out, err := GetCommandOutput(context.Background(), tr, seq, testOpts())
	require.NoError(t, err)
	assert.False(t, out.IsStatus)
	assert.Equal(t, rawData, out.RawData)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestGetStatusParsesReply(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	statusPayload := []byte{0x23, 0x00, 0x00, 50, 7, 0x00, 132}
	tr.SendHook = func(data []byte) error {
		replyFrames, err := v3codec.EncodePacket(statusPayload, nil, 0xFFFF, protocol.PacketTypeStatus)
		if err != nil {
			return err
		}
		tr.Feed(replyFrames[0])
		return nil
	}

	status, err := GetStatus(context.Background(), tr, testOpts())
	require.NoError(t, err)
	assert.Equal(t, byte(0x23), status.DeviceState)
	assert.False(t, status.AbortDisabled)
	assert.Equal(t, uint16(50), status.CurrentCmdSeq)
	assert.Equal(t, byte(7), status.CmdState)
	assert.Equal(t, uint16(132), status.FlowStatus)
}

func TestSendAbortRaisesExecutingOtherCommandOnSeqMismatch(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	const requestedSeq = 5
	statusPayload := []byte{0x00, 0x00, 0x00, 9, 0x00, 0x00, 0x00} // current_cmd_seq=9 != 5
	tr.SendHook = func(data []byte) error {
		replyFrames, err := v3codec.EncodePacket(statusPayload, nil, requestedSeq, protocol.PacketTypeStatus)
		if err != nil {
			return err
		}
		tr.Feed(replyFrames[0])
		return nil
	}

	_, err := SendAbort(context.Background(), tr, requestedSeq, testOpts())
	assert.Error(t, err)
}
