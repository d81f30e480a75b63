// Package usbbulk implements Transport over a real USB bulk endpoint pair
// using gousb, the way the teacher driver opened its ASIC hardware: open by
// VID/PID, claim configuration 1 / interface 0, alt-setting 0, then read and
// write raw bulk transfers.
package usbbulk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gousb"

	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// Config identifies the device to open and the bulk endpoints to use.
// VendorID/ProductID replace the teacher's hardcoded Bitmain constants so the
// same adapter can address any device speaking this protocol family.
type Config struct {
	VendorID  gousb.ID
	ProductID gousb.ID

	// EndpointOut/EndpointIn default to 0x01/0x81, the teacher's bulk pair,
	// when left zero.
	EndpointOut gousb.EndpointAddress
	EndpointIn  gousb.EndpointAddress

	// ReadSize bounds a single bulk read; it defaults to 512 bytes, large
	// enough for one protocol frame in any generation.
	ReadSize int

	// ReadTimeout bounds each bulk read issued by the background pump.
	ReadTimeout time.Duration
}

const (
	defaultEndpointOut = gousb.EndpointAddress(0x01)
	defaultEndpointIn  = gousb.EndpointAddress(0x81)
	defaultReadSize    = 512
	defaultReadTimeout = 200 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.EndpointOut == 0 {
		c.EndpointOut = defaultEndpointOut
	}
	if c.EndpointIn == 0 {
		c.EndpointIn = defaultEndpointIn
	}
	if c.ReadSize == 0 {
		c.ReadSize = defaultReadSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	return c
}

// Transport drives one USB bulk device. BeforeOperation starts a background
// goroutine pumping bulk reads into an in-memory pool; AfterOperation stops
// it, mirroring the teacher's claim/release-around-one-operation pattern.
type Transport struct {
	cfg Config

	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint

	mu          sync.Mutex
	connected   bool
	inbox       [][]byte
	nextID      uint64
	deviceState protocol.DeviceState

	seq uint32

	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
}

// New returns an unopened Transport for the given device.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg.withDefaults()}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	gctx := gousb.NewContext()

	device, err := gctx.OpenDeviceWithVIDPID(t.cfg.VendorID, t.cfg.ProductID)
	if err != nil {
		gctx.Close()
		return deviceerrors.ErrFailedToConnect.WithCause(err)
	}
	if device == nil {
		gctx.Close()
		return fmt.Errorf("usbbulk: device not found (VID:0x%04x PID:0x%04x): %w",
			t.cfg.VendorID, t.cfg.ProductID, deviceerrors.ErrFailedToConnect)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		gctx.Close()
		return deviceerrors.ErrFailedToConnect.WithCause(err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		gctx.Close()
		return deviceerrors.ErrFailedToConnect.WithCause(err)
	}

	epOut, err := intf.OutEndpoint(t.cfg.EndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		gctx.Close()
		return deviceerrors.ErrFailedToConnect.WithCause(err)
	}

	epIn, err := intf.InEndpoint(t.cfg.EndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		gctx.Close()
		return deviceerrors.ErrFailedToConnect.WithCause(err)
	}

	desc := device.Desc
	t.ctx = gctx
	t.device = device
	t.config = config
	t.intf = intf
	t.epOut = epOut
	t.epIn = epIn
	t.connected = true
	t.deviceState = transport.DeviceStateFromPID(uint16(desc.Product))
	return nil
}

func (t *Transport) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pumpCancel != nil {
		t.pumpCancel()
		<-t.pumpDone
		t.pumpCancel = nil
	}

	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.config != nil {
		t.config.Close()
		t.config = nil
	}
	if t.device != nil {
		t.device.Close()
		t.device = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	t.connected = false
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// BeforeOperation starts the background bulk-read pump for the duration of
// one top-level operation, mirroring the teacher's claim-around-use pattern
// without repeatedly re-claiming the interface.
func (t *Transport) BeforeOperation() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return deviceerrors.ErrNotConnected
	}
	if t.pumpCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.pumpCancel = cancel
	t.pumpDone = make(chan struct{})
	go t.pump(ctx)
	return nil
}

func (t *Transport) AfterOperation() error {
	t.mu.Lock()
	cancel := t.pumpCancel
	done := t.pumpDone
	t.pumpCancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (t *Transport) pump(ctx context.Context) {
	defer close(t.pumpDone)

	buf := make([]byte, t.cfg.ReadSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, t.cfg.ReadTimeout)
		n, err := t.epIn.ReadContext(readCtx, buf)
		cancel()
		if err != nil {
			continue
		}
		if n == 0 {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		t.mu.Lock()
		t.inbox = append(t.inbox, frame)
		t.mu.Unlock()
	}
}

func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	connected := t.connected
	epOut := t.epOut
	t.mu.Unlock()

	if !connected {
		return deviceerrors.ErrConnectionClosed
	}

	done := make(chan error, 1)
	go func() {
		_, err := epOut.Write(data)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return deviceerrors.ErrWriteError.WithCause(err)
		}
		return nil
	}
}

func (t *Transport) Receive() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return nil, false
	}
	data := t.inbox[0]
	t.inbox = t.inbox[1:]
	t.nextID++
	return data, true
}

func (t *Transport) Peek() []transport.PeekedFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.PeekedFrame, len(t.inbox))
	for i, d := range t.inbox {
		out[i] = transport.PeekedFrame{ID: t.nextID + uint64(i), Data: d}
	}
	return out
}

func (t *Transport) GetDeviceState() protocol.DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceState
}

func (t *Transport) GetSequenceNumber() uint16 {
	return uint16(atomic.LoadUint32(&t.seq))
}

func (t *Transport) GetNewSequenceNumber() uint16 {
	return uint16(atomic.AddUint32(&t.seq, 1))
}

var _ transport.Transport = (*Transport)(nil)
