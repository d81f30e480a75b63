package session

import (
	"context"
	"time"

	"github.com/ytemiloluwa/device-sdk-go/internal/codec/bootloader"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
)

// BootloaderOptions bounds the xmodem-STM transfer's per-packet retry
// budget and timing, per §4.9.
type BootloaderOptions struct {
	MaxTries           int
	HandshakeTimeout   time.Duration
	EdgePacketTimeout  time.Duration // first/last packet
	MiddlePacketTimeout time.Duration
	Recheck            time.Duration
}

func (o BootloaderOptions) withDefaults() BootloaderOptions {
	if o.MaxTries == 0 {
		o.MaxTries = 5
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10_000 * time.Millisecond
	}
	if o.EdgePacketTimeout == 0 {
		o.EdgePacketTimeout = 10_000 * time.Millisecond
	}
	if o.MiddlePacketTimeout == 0 {
		o.MiddlePacketTimeout = 2_000 * time.Millisecond
	}
	if o.Recheck == 0 {
		o.Recheck = 50 * time.Millisecond
	}
	return o
}

// CheckIfInReceivingMode polls for the device's single 'C' handshake byte
// that signals it is ready to receive an xmodem-STM transfer.
func (s *Session) CheckIfInReceivingMode(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return deviceerrors.ErrNotInReceivingMode
		case <-ticker.C:
			data, ok := s.tr.Receive()
			if !ok {
				continue
			}
			for _, b := range data {
				if bootloader.ResponseByte(b) == bootloader.ResponseHandshake {
					return nil
				}
			}
		}
	}
}

// SendBootloaderData drives the full xmodem-STM firmware transfer: a
// receiving-mode handshake, then one write/ack round per 128-byte packet,
// reporting integer percent progress via onProgress.
func (s *Session) SendBootloaderData(ctx context.Context, data []byte, onProgress func(percent int), opts BootloaderOptions) error {
	opts = opts.withDefaults()

	if err := s.CheckIfInReceivingMode(ctx, opts.HandshakeTimeout); err != nil {
		return err
	}

	packets, err := bootloader.EncodeSTMXModem(data)
	if err != nil {
		return err
	}

	total := len(packets)
	for i, packet := range packets {
		timeout := opts.MiddlePacketTimeout
		if i == 0 || i == total-1 {
			timeout = opts.EdgePacketTimeout
		}
		if err := s.writeBootloaderPacketWithRetry(ctx, packet, timeout, opts); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress((i + 1) * 100 / total)
		}
	}
	return nil
}

func (s *Session) writeBootloaderPacketWithRetry(ctx context.Context, packet []byte, timeout time.Duration, opts BootloaderOptions) error {
	var firstErr error
	for attempt := 0; attempt < opts.MaxTries; attempt++ {
		err := s.writeBootloaderPacket(ctx, packet, timeout, opts.Recheck)
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

func (s *Session) writeBootloaderPacket(ctx context.Context, packet []byte, timeout, recheck time.Duration) error {
	sendErr := make(chan error, 1)
	go func() { sendErr <- s.tr.Send(ctx, packet) }()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	for {
		select {
		case err := <-sendErr:
			if err != nil {
				if !s.tr.IsConnected() {
					return deviceerrors.ErrConnectionClosed.WithCause(err)
				}
				return deviceerrors.ErrWriteError.WithCause(err)
			}
		case <-waitCtx.Done():
			if s.tr.IsConnected() {
				return deviceerrors.ErrReadTimeout
			}
			return deviceerrors.ErrConnectionClosed
		case <-ticker.C:
			data, ok := s.tr.Receive()
			if !ok {
				continue
			}
			for _, b := range data {
				if err := classifyBootloaderReply(bootloader.ResponseByte(b)); err != errPendingMore {
					return err
				}
			}
		}
	}
}

// errPendingMore is a private sentinel meaning "not a recognized reply
// byte yet, keep polling" — never returned to a caller.
type pendingMore struct{}

func (pendingMore) Error() string { return "bootloader: reply byte not yet recognized" }

var errPendingMore error = pendingMore{}

func classifyBootloaderReply(b bootloader.ResponseByte) error {
	switch b {
	case bootloader.ResponseACK:
		return nil
	case bootloader.ResponseFirmwareSizeLimit:
		return deviceerrors.ErrFirmwareSizeLimit
	case bootloader.ResponseWrongHardwareVer:
		return deviceerrors.ErrWrongHardwareVersion
	case bootloader.ResponseLowerFirmwareVer:
		return deviceerrors.ErrLowerFirmwareVersion
	case bootloader.ResponseWrongMagicNumber:
		return deviceerrors.ErrWrongMagicNumber
	case bootloader.ResponseSignatureInvalid:
		return deviceerrors.ErrSignatureNotVerified
	case bootloader.ResponseFlashWriteError:
		return deviceerrors.ErrFlashWriteError
	case bootloader.ResponseFlashCRCMismatch:
		return deviceerrors.ErrFlashCRCMismatch
	case bootloader.ResponseFlashTimeout:
		return deviceerrors.ErrFlashTimeout
	case bootloader.ResponseFlashNACK:
		return deviceerrors.ErrFlashNACK
	default:
		return errPendingMore
	}
}

// SendBootloaderAbort sends the one-shot bootloader abort byte and waits
// for the device's abort-ack byte.
func (s *Session) SendBootloaderAbort(ctx context.Context, timeout time.Duration) error {
	const abortByte = 0x41

	if err := s.tr.Send(ctx, []byte{abortByte}); err != nil {
		if !s.tr.IsConnected() {
			return deviceerrors.ErrConnectionClosed.WithCause(err)
		}
		return deviceerrors.ErrWriteError.WithCause(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if s.tr.IsConnected() {
				return deviceerrors.ErrReadTimeout
			}
			return deviceerrors.ErrConnectionClosed
		case <-ticker.C:
			data, ok := s.tr.Receive()
			if !ok {
				continue
			}
			for _, b := range data {
				if bootloader.ResponseByte(b) == bootloader.ResponseAbortAck {
					return nil
				}
			}
		}
	}
}
