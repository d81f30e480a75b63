package session

import (
	"context"
	"time"

	"github.com/ytemiloluwa/device-sdk-go/internal/bitutil"
	legacycodec "github.com/ytemiloluwa/device-sdk-go/internal/codec/legacy"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// handshakeCommand is the legacy v1 command code every firmware generation
// answers, per §4.8 step 2.
const handshakeCommand = 0x58

// handshake sends the v1 discovery command and waits for a reply carrying
// the same command code, retrying up to maxTries times. Unlike the
// fragmented send/ack flow in internal/engine/legacy.go (which expects an
// ACK/NACK reply to each data packet), the handshake expects the device to
// answer with its own data-bearing reply of the same command type, so it
// is driven directly here rather than through that engine.
func handshake(ctx context.Context, tr transport.Transport, maxTries int, timeout time.Duration) (string, error) {
	packets, err := legacycodec.XModemEncode([]byte{0x00}, handshakeCommand, protocol.GenerationV1)
	if err != nil {
		return "", err
	}

	var firstErr error
	for attempt := 0; attempt < maxTries; attempt++ {
		reply, err := exchangeHandshakePacket(ctx, tr, packets[0], timeout)
		if err == nil {
			return bitutil.BytesToHex(reply), nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if !deviceerrors.CanRetry(err) {
			return "", firstErr
		}
	}
	return "", firstErr
}

func exchangeHandshakePacket(ctx context.Context, tr transport.Transport, packet []byte, timeout time.Duration) ([]byte, error) {
	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send(ctx, packet) }()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-sendErr:
			if err != nil {
				if !tr.IsConnected() {
					return nil, deviceerrors.ErrConnectionClosed.WithCause(err)
				}
				return nil, deviceerrors.ErrWriteError.WithCause(err)
			}
		case <-waitCtx.Done():
			if tr.IsConnected() {
				return nil, deviceerrors.ErrReadTimeout
			}
			return nil, deviceerrors.ErrConnectionClosed
		case <-ticker.C:
			data, ok := tr.Receive()
			if !ok {
				continue
			}
			frames, err := legacycodec.XModemDecode(data, protocol.GenerationV1)
			if err != nil {
				continue
			}
			for _, f := range frames {
				if !f.OK() || f.CommandType != handshakeCommand {
					continue
				}
				return f.DataChunk, nil
			}
		}
	}
}
