// Package loopback provides a deterministic in-memory Transport used by
// every other package's tests; no real hardware is involved.
package loopback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

// Transport is an in-memory duplex pipe. A test feeds device replies in
// through Feed (or from SendHook) and reads sent frames from Sent.
type Transport struct {
	mu          sync.Mutex
	connected   bool
	inbox       [][]byte
	nextID      uint64
	seq         uint32
	deviceState protocol.DeviceState

	// Sent records every frame handed to Send, for test assertions.
	Sent [][]byte

	// SendHook, when set, is invoked synchronously from Send before the
	// frame is recorded; returning an error fails the send (simulating a
	// disconnect or write rejection mid-transfer).
	SendHook func(data []byte) error
}

// New returns a connected loopback transport reporting the given device
// state.
func New(state protocol.DeviceState) *Transport {
	return &Transport{connected: true, deviceState: state}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *Transport) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) BeforeOperation() error { return nil }
func (t *Transport) AfterOperation() error  { return nil }

func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	connected := t.connected
	hook := t.SendHook
	t.mu.Unlock()

	if !connected {
		return deviceerrors.ErrConnectionClosed
	}
	if hook != nil {
		if err := hook(data); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.Sent = append(t.Sent, data)
	t.mu.Unlock()
	return nil
}

// Feed injects a frame into the receive pool, as if the device had sent it.
func (t *Transport) Feed(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, data)
}

// Disconnect marks the transport closed, as a test simulating a dropped
// connection mid-operation.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

func (t *Transport) Receive() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return nil, false
	}
	data := t.inbox[0]
	t.inbox = t.inbox[1:]
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
