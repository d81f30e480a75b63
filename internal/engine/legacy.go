package engine

import (
	"context"
	"time"

	legacycodec "github.com/ytemiloluwa/device-sdk-go/internal/codec/legacy"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// LegacyOptions bounds a legacy v1/v2 exchange's retry budget and timing.
type LegacyOptions struct {
	MaxTries int
	Timeout  time.Duration
	Recheck  time.Duration
}

func (o LegacyOptions) withDefaults(gen protocol.Generation) LegacyOptions {
	cfg := protocol.ConfigFor(gen)
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

// SendData fragments data into xmodem packets and drives each through a
// write/ack exchange, expecting an ACK-command reply carrying the same
// packet number. Command 0xFF is a firmware-related edge case whose packets
// are attempted only once, regardless of the caller's requested budget.
func SendData(ctx context.Context, tr transport.Transport, data []byte, commandType uint32, gen protocol.Generation, opts LegacyOptions) error {
	opts = opts.withDefaults(gen)
	if commandType == 0xFF {
		opts.MaxTries = 1
	}

	packets, err := legacycodec.XModemEncode(data, commandType, gen)
	if err != nil {
		return err
	}

	for i, packet := range packets {
		packetNumber := byte(i + 1)
		if err := sendLegacyPacketWithRetry(ctx, tr, packet, packetNumber, gen, opts); err != nil {
			return err
		}
	}
	return nil
}

func sendLegacyPacketWithRetry(ctx context.Context, tr transport.Transport, packet []byte, packetNumber byte, gen protocol.Generation, opts LegacyOptions) error {
	var firstErr error
	for attempt := 0; attempt < opts.MaxTries; attempt++ {
		err := writeLegacyPacket(ctx, tr, packet, packetNumber, gen, opts)
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

func writeLegacyPacket(ctx context.Context, tr transport.Transport, packet []byte, packetNumber byte, gen protocol.Generation, opts LegacyOptions) error {
	sendErr := make(chan error, 1)
	go func() { sendErr <- tr.Send(ctx, packet) }()

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Recheck)
	defer ticker.Stop()

	for {
		select {
		case err := <-sendErr:
			if err != nil {
				return classifySendError(tr, err)
			}
		case <-waitCtx.Done():
			if tr.IsConnected() {
				return deviceerrors.ErrReadTimeout
			}
			return deviceerrors.ErrConnectionClosed
		case <-ticker.C:
			data, ok := tr.Receive()
			if !ok {
				continue
			}
			frames, err := legacycodec.XModemDecode(data, gen)
			if err != nil {
				continue
			}
			for _, f := range frames {
				if !f.OK() {
					continue
				}
				if f.CommandType == legacycodec.CommandNack && f.CurrentPacketNumber == packetNumber {
					return deviceerrors.ErrWriteRejected
				}
				if f.CommandType == legacycodec.CommandAck && f.CurrentPacketNumber == packetNumber {
					return nil
				}
			}
		}
	}
}

// ReceiveData assembles an inbound legacy xmodem transfer, acking each
// packet in order as it arrives and returning once the declared total is
// reached.
func ReceiveData(ctx context.Context, tr transport.Transport, commandType uint32, gen protocol.Generation, opts LegacyOptions) ([]byte, error) {
	opts = opts.withDefaults(gen)

	var assembled []byte
	expected := byte(1)
	total := byte(1)

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Recheck)
	defer ticker.Stop()

	for expected <= total {
		select {
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
			frames, err := legacycodec.XModemDecode(data, gen)
			if err != nil {
				continue
			}
			for _, f := range frames {
				if !f.OK() || f.CurrentPacketNumber != expected {
					continue
				}
				assembled = append(assembled, f.DataChunk...)
				total = f.TotalPacket

				ack, err := legacycodec.CreateAckPacket(commandType, f.CurrentPacketNumber, gen)
				if err != nil {
					return nil, err
				}
				if err := tr.Send(ctx, ack); err != nil {
					return nil, classifySendError(tr, err)
				}
				expected++
			}
		}
	}
	return assembled, nil
}
