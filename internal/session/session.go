package session

import (
	"context"
	"sync"
	"time"

	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/logging"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// Session owns a connection's Transport and everything negotiated at
// handshake: sdk version, packet generation, and the per-connection
// sequence counter used to stamp outbound commands. It is the single
// entry point application modules (out of this module's scope) drive
// through the operation layer.
type Session struct {
	mu sync.Mutex

	tr      transport.Transport
	log     logging.Logger
	AppletID uint32

	SDKVersion       Version
	PacketGeneration protocol.Generation
	DeviceState      protocol.DeviceState

	appVersions map[uint32]AppVersion
}

// CreateOptions bounds the handshake's retry budget and timing.
type CreateOptions struct {
	MaxTries int
	Timeout  time.Duration
	Logger   logging.Logger
}

func (o CreateOptions) withDefaults() CreateOptions {
	if o.MaxTries == 0 {
		o.MaxTries = 2
	}
	if o.Timeout == 0 {
		o.Timeout = 5000 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = logging.Default
	}
	return o
}

// Create runs the SDK discovery handshake (§4.8) against tr and returns a
// ready-to-use Session, or the bootloader-mode shortcut if the device is
// currently running its bootloader.
func Create(ctx context.Context, tr transport.Transport, appletID uint32, opts CreateOptions) (*Session, error) {
	opts = opts.withDefaults()

	s := &Session{
		tr:          tr,
		log:         opts.Logger,
		AppletID:    appletID,
		DeviceState: tr.GetDeviceState(),
		appVersions: make(map[uint32]AppVersion),
	}

	if s.DeviceState == protocol.DeviceStateBootloader {
		s.SDKVersion = Version{0, 0, 0}
		s.log.Infof("device in bootloader mode, skipping handshake")
		return s, nil
	}

	hex12, err := handshake(ctx, tr, opts.MaxTries, opts.Timeout)
	if err != nil {
		return nil, err
	}
	versionStr, err := FormatSDKVersion(hex12)
	if err != nil {
		return nil, err
	}
	v, err := ParseVersion(versionStr)
	if err != nil {
		return nil, err
	}
	gen, err := PacketGenerationForVersion(v)
	if err != nil {
		return nil, err
	}

	s.SDKVersion = v
	s.PacketGeneration = gen
	s.log.Infof("handshake complete: sdk_version=%s packet_generation=%s", v, gen)
	return s, nil
}

// Transport exposes the underlying Transport for callers that need to
// drive it directly (e.g. a bootloader flash tool checking IsConnected).
func (s *Session) Transport() transport.Transport { return s.tr }

// NextSequence acquires a new sequence number for an outbound command.
func (s *Session) NextSequence() uint16 { return s.tr.GetNewSequenceNumber() }

// LatestSequence returns the device connection's most recently issued
// sequence number, used to distinguish "stale reject" from "device really
// doesn't know this sequence" per the §4.5 step 3 / §9 sequence-reservation
// design note (fetched via a documented accessor rather than inferred from
// mutable state, as the design notes recommend).
func (s *Session) LatestSequence() uint16 { return s.tr.GetSequenceNumber() }

func (s *Session) ensureNotBootloader() error {
	if s.DeviceState == protocol.DeviceStateBootloader {
		return deviceerrors.ErrInBootloader
	}
	return nil
}
