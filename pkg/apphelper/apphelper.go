// Package apphelper implements the query/result multiplexing helper every
// application-facing module built on top of this SDK shares: send a typed
// query and await its typed result, upload large auxiliary payloads (e.g.
// an unsigned transaction) as a sequence of chunks, and parse the
// error oneof every application's responses carry in common.
//
// Grounded on original_source/packages/app_btc/src/utils/operationHelper.py
// (OperationHelper.send_query/wait_for_result/send_in_chunks) and
// original_source/packages/app_btc/src/app_btc/utils/assert_utils.py
// (parse_common_error). The actual query/result protobuf schema stays an
// application-module concern (spec.md §1): this package only owns the
// query/result plumbing, the chunking arithmetic, and the common-error
// table, all parameterized on plain byte payloads.
package apphelper

import (
	"context"
	"encoding/binary"

	v3codec "github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/engine"
	"github.com/ytemiloluwa/device-sdk-go/internal/session"
)

// DefaultChunkSize matches the reference implementation's fixed chunk size
// for auxiliary uploads (OperationHelper.CHUNK_SIZE); it is independent of
// the negotiated packet generation's own frame chunk size, since one
// "chunk" here may itself be fragmented into several wire frames by the
// session layer.
const DefaultChunkSize = 2048

// Helper multiplexes one application module's queries over a Session.
type Helper struct {
	Session   *session.Session
	OnStatus  func(v3codec.Status)
	ChunkSize int
}

// New returns a Helper bound to sess, using DefaultChunkSize unless
// overridden by setting Helper.ChunkSize directly afterward.
func New(sess *session.Session, onStatus func(v3codec.Status)) *Helper {
	return &Helper{Session: sess, OnStatus: onStatus, ChunkSize: DefaultChunkSize}
}

// Query sends protoData as one application query and returns the device's
// decoded reply payload, running the full send_query/wait_for_result
// round trip.
func (h *Helper) Query(ctx context.Context, protoData []byte, opts engine.Options) ([]byte, error) {
	seq, err := h.Session.SendQuery(ctx, protoData, opts)
	if err != nil {
		return nil, err
	}
	return h.Session.WaitForResult(ctx, seq, nil, h.OnStatus, session.Options{Options: opts})
}

// ChunkPayload is one piece of a larger auxiliary upload, matching the
// reference implementation's ChunkPayload message shape (chunk,
// chunk_index, total_chunks, remaining_size).
type ChunkPayload struct {
	Chunk         []byte
	ChunkIndex    int
	TotalChunks   int
	RemainingSize int
}

// SplitIntoChunks partitions data into ChunkPayloads of at most
// h.ChunkSize bytes each (DefaultChunkSize if unset), tracking how many
// bytes remain to be sent after each chunk.
func (h *Helper) SplitIntoChunks(data []byte) []ChunkPayload {
	size := h.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	total := (len(data) + size - 1) / size
	if total == 0 {
		total = 1
	}

	chunks := make([]ChunkPayload, 0, total)
	remaining := len(data)
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		remaining -= len(chunk)
		chunks = append(chunks, ChunkPayload{
			Chunk:         chunk,
			ChunkIndex:    i,
			TotalChunks:   total,
			RemainingSize: remaining,
		})
	}
	return chunks
}

// SendInChunks uploads data as a sequence of queries, one per chunk,
// calling encodeChunk to wrap each ChunkPayload in the caller's own query
// envelope and ackChunkIndex to extract the device's echoed chunk index
// from each reply for the out-of-order-detection check the reference
// implementation performs (chunk_ack.chunk_index == i).
func (h *Helper) SendInChunks(ctx context.Context, data []byte, opts engine.Options, encodeChunk func(ChunkPayload) []byte, ackChunkIndex func(reply []byte) (int, error)) error {
	for _, chunk := range h.SplitIntoChunks(data) {
		reply, err := h.Query(ctx, encodeChunk(chunk), opts)
		if err != nil {
			return err
		}
		if ackChunkIndex == nil {
			continue
		}
		gotIndex, err := ackChunkIndex(reply)
		if err != nil {
			return err
		}
		if gotIndex != chunk.ChunkIndex {
			return deviceerrors.ErrInvalidMsg
		}
	}
	return nil
}

// CommonError mirrors the error oneof every application response carries,
// per original_source's parse_common_error: at most one field is nonzero,
// and the earliest-declared nonzero field wins (matching the reference's
// field iteration order).
type CommonError struct {
	UnknownError        uint32
	DeviceSetupRequired uint32
	WalletNotFound      uint32
	WalletPartialState  uint32
	CardError           uint32
	UserRejection       uint32
	CorruptData         uint32
}

// ParseCommonError returns the mapped deviceerrors.Error for the first
// nonzero field in e, or nil if e carries no error.
func ParseCommonError(e CommonError) error {
	switch {
	case e.UnknownError != 0:
		return deviceerrors.ErrUnknownApp
	case e.DeviceSetupRequired != 0:
		return deviceerrors.ErrDeviceSetupRequired
	case e.WalletNotFound != 0:
		return deviceerrors.ErrWalletNotFound
	case e.WalletPartialState != 0:
		return deviceerrors.ErrWalletPartialState
	case e.CardError != 0:
		return deviceerrors.CardSubError(cardSubCodeFor(e.CardError))
	case e.UserRejection != 0:
		return deviceerrors.ErrUserRejection
	case e.CorruptData != 0:
		return deviceerrors.ErrCorruptData
	default:
		return nil
	}
}

// cardSubCodeFor returns CardSubUnknown for every card status word; it does
// not map status words to the specific APP_0400_xxx sub-codes. The
// wire-level status-word table belongs to the card applet's own protocol
// and is out of this module's scope; callers that need a specific sub-code
// mapping should call deviceerrors.CardSubError directly instead of going
// through ParseCommonError.
func cardSubCodeFor(uint32) string {
	return deviceerrors.CardSubUnknown
}

// EncodeUint32BE is a small helper application modules commonly need when
// hand-rolling a query envelope around a ChunkPayload without a full
// protobuf toolchain (e.g. prefixing a chunk with its big-endian index).
func EncodeUint32BE(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}
