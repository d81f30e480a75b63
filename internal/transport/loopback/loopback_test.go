package loopback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ytemiloluwa/device-sdk-go/internal/deviceerrors"
	"github.com/ytemiloluwa/device-sdk-go/internal/protocol"
	"github.com/ytemiloluwa/device-sdk-go/internal/transport"
)

func TestSendRecordsFrames(t *testing.T) {
	tr := New(protocol.DeviceStateFirmware)
	require.NoError(t, tr.Send(context.Background(), []byte{0x01, 0x02}))
	require.Len(t, tr.Sent, 1)
	assert.Equal(t, []byte{0x01, 0x02}, tr.Sent[0])
}

func TestSendFailsWhenDisconnected(t *testing.T) {
	tr := New(protocol.DeviceStateFirmware)
	tr.Disconnect()
	err := tr.Send(context.Background(), []byte{0x01})
	assert.ErrorIs(t, err, deviceerrors.ErrConnectionClosed)
}

func TestSendHookCanRejectMidSend(t *testing.T) {
	tr := New(protocol.DeviceStateFirmware)
	tr.SendHook = func(data []byte) error { return errors.New("nak") }
	err := tr.Send(context.Background(), []byte{0x01})
	assert.Error(t, err)
	assert.Empty(t, tr.Sent)
}

func TestFeedAndReceiveFIFO(t *testing.T) {
	tr := New(protocol.DeviceStateFirmware)
	tr.Feed([]byte{0x01})
	tr.Feed([]byte{0x02})

	data, ok := tr.Receive()
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, data)

	data, ok = tr.Receive()
	require.True(t, ok)
	assert.Equal(t, []byte{0x02}, data)

	_, ok = tr.Receive()
	assert.False(t, ok)
}

func TestSequenceNumberMonotonic(t *testing.T) {
	tr := New(protocol.DeviceStateFirmware)
	assert.Equal(t, uint16(0), tr.GetSequenceNumber())
	first := tr.GetNewSequenceNumber()
	second := tr.GetNewSequenceNumber()
	assert.Equal(t, first+1, second)
	assert.Equal(t, second, tr.GetSequenceNumber())
}

func TestDeviceStateFromPID(t *testing.T) {
	assert.Equal(t, protocol.DeviceStateBootloader, transport.DeviceStateFromPID(0x5701))
	assert.Equal(t, protocol.DeviceStateInitial, transport.DeviceStateFromPID(0x5702))
	assert.Equal(t, protocol.DeviceStateFirmware, transport.DeviceStateFromPID(0x5703))
}
