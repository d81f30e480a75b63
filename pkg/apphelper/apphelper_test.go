package apphelper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	legacycodec "github.com/ytemiloluwa/device-sdk-go/internal/codec/legacy"
	v3codec "github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/engine"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/session"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport/loopback"
)

// newTestSession runs session.Create against tr, answering its legacy
// handshake with sdk version 2.7.1 (packet generation v3), then restores
// the SendHook the test installed.
func newTestSession(t *testing.T, tr *loopback.Transport) *session.Session {
	t.Helper()
	testHook := tr.SendHook
	tr.SendHook = func(data []byte) error {
		frames, err := legacycodec.XModemDecode(data, protocol.GenerationV1)
		if err != nil || len(frames) == 0 {
			return nil
		}
		reply, err := legacycodec.XModemEncode([]byte{0x00, 0x02, 0x00, 0x07, 0x00, 0x01}, frames[0].CommandType, protocol.GenerationV1)
		if err != nil {
			return err
		}
		tr.Feed(reply[0])
		return nil
	}
	sess, err := session.Create(context.Background(), tr, 2, session.CreateOptions{})
	tr.SendHook = testHook
	require.NoError(t, err)
	return sess
}

func testOpts() engine.Options {
	return engine.Options{MaxTries: 2, Timeout: 200 * time.Millisecond, Recheck: 2 * time.Millisecond}
}

func TestQueryRoundTrip(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	reply := []byte("ok")

	var outputFrames [][]byte
	tr.SendHook = func(data []byte) error {
		frames := v3codec.DecodeFrames(data)
		if len(frames) == 0 {
			return nil
		}
		f := frames[0]
		switch f.PacketType {
		case protocol.PacketTypeCommand:
			ackFrames, err := v3codec.EncodePacket(nil, nil, f.SequenceNo, protocol.PacketTypeCmdAck)
			if err != nil {
				return err
			}
			tr.Feed(ackFrames[0])
		case protocol.PacketTypeCmdOutputReq:
			if outputFrames == nil {
				var err error
				outputFrames, err = v3codec.EncodePacket(nil, reply, f.SequenceNo, protocol.PacketTypeCmdOutput)
				if err != nil {
					return err
				}
			}
			_, rawIdx, err := v3codec.DecodePayload(f.Payload)
			if err != nil || len(rawIdx) == 0 {
				return nil
			}
			tr.Feed(outputFrames[rawIdx[0]-1])
		}
		return nil
	}

	h := New(newTestSession(t, tr), nil)
	out, err := h.Query(context.Background(), []byte("query"), testOpts())
	require.NoError(t, err)
	assert.Equal(t, reply, out)
}

func TestSplitIntoChunksTracksRemainingSize(t *testing.T) {
	h := &Helper{ChunkSize: 10}
	chunks := h.SplitIntoChunks(make([]byte, 25))

	require.Len(t, chunks, 3)
	assert.Equal(t, 15, chunks[0].RemainingSize)
	assert.Equal(t, 5, chunks[1].RemainingSize)
	assert.Equal(t, 0, chunks[2].RemainingSize)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, 3, c.TotalChunks)
	}
}

func TestSplitIntoChunksDefaultsWhenUnset(t *testing.T) {
	h := &Helper{}
	chunks := h.SplitIntoChunks(make([]byte, DefaultChunkSize+1))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Chunk, DefaultChunkSize)
	assert.Len(t, chunks[1].Chunk, 1)
}

func TestSendInChunksRejectsOutOfOrderAck(t *testing.T) {
	tr := loopback.New(protocol.DeviceStateFirmware)
	var outputFrames [][]byte
	tr.SendHook = func(data []byte) error {
		frames := v3codec.DecodeFrames(data)
		if len(frames) == 0 {
			return nil
		}
		f := frames[0]
		switch f.PacketType {
		case protocol.PacketTypeCommand:
			ackFrames, err := v3codec.EncodePacket(nil, nil, f.SequenceNo, protocol.PacketTypeCmdAck)
			if err != nil {
				return err
			}
			tr.Feed(ackFrames[0])
		case protocol.PacketTypeCmdOutputReq:
			if outputFrames == nil {
				var err error
				outputFrames, err = v3codec.EncodePacket(nil, EncodeUint32BE(99), f.SequenceNo, protocol.PacketTypeCmdOutput)
				if err != nil {
					return err
				}
			}
			_, rawIdx, err := v3codec.DecodePayload(f.Payload)
			if err != nil || len(rawIdx) == 0 {
				return nil
			}
			tr.Feed(outputFrames[rawIdx[0]-1])
		}
		return nil
	}

	h := New(newTestSession(t, tr), nil)
	err := h.SendInChunks(context.Background(), make([]byte, 4), testOpts(),
		func(c ChunkPayload) []byte { return c.Chunk },
		func(reply []byte) (int, error) { return 99, nil },
	)
	assert.ErrorIs(t, err, deviceerrors.ErrInvalidMsg)
}

func TestParseCommonError(t *testing.T) {
	assert.Nil(t, ParseCommonError(CommonError{}))
	assert.Equal(t, deviceerrors.ErrWalletNotFound, ParseCommonError(CommonError{WalletNotFound: 1}))
	assert.Equal(t, deviceerrors.ErrUserRejection, ParseCommonError(CommonError{UserRejection: 1}))

	// Earliest-declared field wins when more than one is set, matching the
	// reference implementation's field iteration order.
	assert.Equal(t, deviceerrors.ErrUnknownApp, ParseCommonError(CommonError{UnknownError: 1, CorruptData: 1}))

	cardErr, ok := ParseCommonError(CommonError{CardError: 1}).(*deviceerrors.Error)
	require.True(t, ok)
	assert.Equal(t, deviceerrors.CardSubUnknown, cardErr.Code)
}
