package session

import (
	"context"
	"math/rand"
	"time"

	v3codec "github.com/ytemiloluwa/device-sdk-go/internal/codec/v3"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/engine"
)

// DeviceIdleState is the waiting-on nibble of Status.DeviceState: what the
// device is currently blocked on while idle.
type DeviceIdleState byte

const (
	DeviceIdleNone DeviceIdleState = iota
	DeviceIdleUSB
	DeviceIdleCard
)

// CmdState is the device-reported lifecycle of the command at
// Status.CurrentCmdSeq.
type CmdState byte

const (
	CmdStatePending CmdState = iota
	CmdStateReceiving
	CmdStateExecuting
	CmdStateDone
	CmdStateFailed
	CmdStateInvalidCmd
)

// splitDeviceState decodes Status.DeviceState's two nibbles: the low
// nibble is whether the device considers itself idle, the high nibble is
// what it is waiting on while idle (e.g. USB host input, a card tap).
func splitDeviceState(b byte) (idleFlag byte, waitingOn DeviceIdleState) {
	return b & 0x0F, DeviceIdleState((b >> 4) & 0x0F)
}

// ResponseEnvelope is the decoded shape of one CMD_OUTPUT reply once a
// caller-supplied parser has unwrapped the application-layer envelope
// (applet routing and the error/success oneof). The exact wire schema of
// that envelope is an application-layer concern out of this module's
// scope (spec.md §1); WaitForResult only needs these four fields to
// enforce the operation-layer invariants in §4.7.
type ResponseEnvelope struct {
	AppletID   uint32
	IsError    bool
	ErrorBytes []byte
	Payload    []byte
}

// EnvelopeParser decodes one reassembled reply (proto and raw components)
// into a ResponseEnvelope. A nil parser makes WaitForResult skip the
// applet-id check and simply return the raw payload bytes (proto payload
// if no raw body, raw body otherwise), per §4.7 step 2.
type EnvelopeParser func(protoData, rawData []byte) (ResponseEnvelope, error)

// Options mirrors engine.Options for the command this operation drives,
// plus the long-poll recheck interval used between GetCommandOutput calls.
type Options struct {
	engine.Options
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval == 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	return o
}

// SendQuery fragments and sends data as a v3 CMD, returning the sequence
// number the caller must pass to WaitForResult. It is a silent success: no
// payload is returned here, matching §4.7's "send_query" semantics.
func (s *Session) SendQuery(ctx context.Context, protoData []byte, opts engine.Options) (uint16, error) {
	if err := s.ensureNotBootloader(); err != nil {
		return 0, err
	}
	seq := s.NextSequence()
	if err := engine.SendCommand(ctx, s.tr, nil, protoData, seq, opts); err != nil {
		return 0, err
	}
	return seq, nil
}

// WaitForResult long-polls GetCommandOutput for seq until the device
// returns the assembled reply. A STATUS reply observed along the way is
// forwarded to onStatus only when it shows the device waiting on USB input.
// See §4.7 step 1-3.
func (s *Session) WaitForResult(ctx context.Context, seq uint16, parse EnvelopeParser, onStatus func(v3codec.Status), opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	for {
		out, err := engine.GetCommandOutput(ctx, s.tr, seq, opts.Options)
		if err != nil {
			return nil, err
		}

		if !out.IsStatus {
			if parse == nil {
				if len(out.RawData) > 0 {
					return out.RawData, nil
				}
				return out.ProtoData, nil
			}
			envelope, err := parse(out.ProtoData, out.RawData)
			if err != nil {
				return nil, err
			}
			if envelope.AppletID != s.AppletID {
				return nil, deviceerrors.ErrInvalidAppIDFromDevice
			}
			if envelope.IsError {
				return nil, mapEnvelopeError(envelope.ErrorBytes)
			}
			return envelope.Payload, nil
		}

		status := out.Status
		if status.CurrentCmdSeq != seq {
			return nil, deviceerrors.ErrExecutingOtherCommand
		}

		cmdState := CmdState(status.CmdState)
		if cmdState == CmdStateDone || cmdState == CmdStateFailed || cmdState == CmdStateInvalidCmd {
			return nil, deviceerrors.ErrInvalidMsgFromDevice
		}

		_, waitingOn := splitDeviceState(status.DeviceState)

		if waitingOn == DeviceIdleUSB && onStatus != nil {
			onStatus(status)
		}

		select {
		case <-ctx.Done():
			return nil, deviceerrors.ErrReadTimeout
		case <-time.After(jitter(opts.PollInterval)):
		}
	}
}

// jitter adds up to 20% positive skew to a long-poll recheck interval so
// many concurrent sessions don't all wake in lockstep.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return base
	}
	skew := time.Duration(rand.Int63n(int64(base) / 5))
	return base + skew
}

// mapEnvelopeError is the seam an application module can swap in (via a
// wrapping helper, e.g. pkg/apphelper) for the device's structured error
// oneof. The core SDK has no visibility into that schema, so it returns
// the generic Unknown application error with the raw bytes attached.
func mapEnvelopeError(raw []byte) error {
	return deviceerrors.ErrUnknownApp.WithCause(errBytes(raw))
}

type errBytes []byte

func (b errBytes) Error() string { return "device reported an application error" }

// EnsureIfUsbIdle clears stale command state left over from a previous
// operation: if the device is idling with DeviceIdleUSB and abort is not
// disabled, it aborts the device's currently-tracked sequence. Called
// before every operation per §4.7.
func (s *Session) EnsureIfUsbIdle(ctx context.Context, opts engine.Options) error {
	status, err := engine.GetStatus(ctx, s.tr, opts)
	if err != nil {
		return err
	}
	_, waitingOn := splitDeviceState(status.DeviceState)
	if waitingOn == DeviceIdleUSB && !status.AbortDisabled {
		_, err := engine.SendAbort(ctx, s.tr, status.CurrentCmdSeq, opts)
		if err != nil && err != deviceerrors.ErrExecutingOtherCommand {
			return err
		}
	}
	return nil
}

// Abort requests the device abort the command at seq.
func (s *Session) Abort(ctx context.Context, seq uint16, opts engine.Options) (v3codec.Status, error) {
	return engine.SendAbort(ctx, s.tr, seq, opts)
}

// RunOperation wraps op in the transport's before/after-operation
// lifecycle (starting and stopping its background receive pump), invoking
// AfterOperation even when op fails, as long as the transport is still
// connected. Errors from op are returned unchanged.
func (s *Session) RunOperation(op func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := s.tr.BeforeOperation(); err != nil {
			return err
		}
		opErr := op(ctx)
		if s.tr.IsConnected() {
			if afterErr := s.tr.AfterOperation(); afterErr != nil && opErr == nil {
				return afterErr
			}
		}
		return opErr
	}
}
