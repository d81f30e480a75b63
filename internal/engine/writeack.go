// Package engine implements the write/ack loop and the fragmenter/assembler
// built on top of it: the two pieces that turn a byte Transport into a
// request/response command channel.
package engine

import (
	"context"
	"time"

	"github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// WriteCommand sends one v3 frame and races the send against a poller
// watching for the matching reply, the way a single asyncio.wait(...,
// FIRST_COMPLETED) would: whichever finishes first decides the outcome, and
// the loser is left to resolve on its own rather than blocking the caller.
func WriteCommand(ctx context.Context, tr transport.Transport, frame []byte, seq uint16, expected []protocol.PacketType, timeout, recheck time.Duration) (v3.Frame, error) {
	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send(ctx, frame) }()

	result := make(chan v3.Frame, 1)
	waitErr := make(chan error, 1)
	waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
	defer cancelWait()
	go pollForFrame(waitCtx, tr, seq, expected, recheck, result, waitErr)

	select {
	case f := <-result:
		return f, nil

	case err := <-waitErr:
		// A send failure racing the same instant takes priority: it
		// explains why no reply ever arrived.
		select {
		case sErr := <-sendErr:
			if sErr != nil {
				return v3.Frame{}, classifySendError(tr, sErr)
			}
		default:
		}
		return v3.Frame{}, err

	case sErr := <-sendErr:
		if sErr != nil {
			return v3.Frame{}, classifySendError(tr, sErr)
		}
		// Send succeeded; keep waiting for the reply.
		select {
		case f := <-result:
			return f, nil
		case err := <-waitErr:
			return v3.Frame{}, err
		}
	}
}

func classifySendError(tr transport.Transport, err error) error {
	if !tr.IsConnected() {
		return deviceerrors.ErrConnectionClosed.WithCause(err)
	}
	return deviceerrors.ErrWriteError.WithCause(err)
}

func pollForFrame(ctx context.Context, tr transport.Transport, seq uint16, expected []protocol.PacketType, recheck time.Duration, result chan<- v3.Frame, waitErr chan<- error) {
	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if tr.IsConnected() {
				waitErr <- deviceerrors.ErrReadTimeout
			} else {
				waitErr <- deviceerrors.ErrConnectionClosed
			}
			return
		case <-ticker.C:
			data, ok := tr.Receive()
			if !ok {
				continue
			}
			for _, f := range v3.DecodeFrames(data) {
				if !f.OK() {
					continue
				}
				if f.PacketType == protocol.PacketTypeError {
					if err := classifyReject(tr, f, seq); err != nil {
						waitErr <- err
						return
					}
					continue
				}
				if !isExpected(f.PacketType, expected) {
					continue
				}
				if f.PacketType == protocol.PacketTypeStatus || f.SequenceNo == seq {
					result <- f
					return
				}
			}
		}
	}
}

func classifyReject(tr transport.Transport, f v3.Frame, seq uint16) error {
	_, rawData, err := v3.DecodePayload(f.Payload)
	if err != nil || len(rawData) == 0 {
		return deviceerrors.ErrWriteRejected.WithCause(err)
	}
	reason := v3.RejectReason(rawData[0])
	if reason == v3.RejectInvalidSequenceNo && tr.GetSequenceNumber() != seq {
		return deviceerrors.ErrProcessAborted
	}
	return deviceerrors.ErrWriteRejected.WithCause(errRejectReason(reason))
}

type errRejectReason v3.RejectReason

func (r errRejectReason) Error() string { return v3.RejectReason(r).Message() }

func isExpected(t protocol.PacketType, expected []protocol.PacketType) bool {
	for _, e := range expected {
		if e == t {
			return true
		}
	}
	return false
}
