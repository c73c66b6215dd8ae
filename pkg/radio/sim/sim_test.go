package sim

import (
	"testing"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func airtime(t *testing.T) radio.Airtime {
	a, err := radio.NewAirtime(entities.RadioConfig{SpreadingFactor: 7, BandwidthKHz: 125, CodingRate: 5, Preamble: 8})
	require.NoError(t, err)
	return a
}

func TestGivenTwoRadiosWhenTransmitThenPeerReceives(t *testing.T) {
	ether := NewEther()
	a := ether.Attach("a", airtime(t))
	b := ether.Attach("b", airtime(t))

	require.NoError(t, a.Transmit([]byte{1, 2, 3}, time.Second))
	timedOut, elapsed := a.WaitForCompletion()
	assert.False(t, timedOut)
	assert.Equal(t, a.TimeOnAir(3), elapsed)

	require.NoError(t, b.StartReceive(100*time.Millisecond))
	timedOut, _ = b.WaitForCompletion()
	require.False(t, timedOut)
	buf := make([]byte, b.PacketLength())
	require.NoError(t, b.ReadReceived(buf))
	assert.Equal(t, []byte{1, 2, 3}, buf)
	assert.Equal(t, [][]byte{{1, 2, 3}}, a.Sent())
}

func TestGivenEmptyInboxWhenReceiveThenTimesOut(t *testing.T) {
	r := NewEther().Attach("a", airtime(t))

	require.NoError(t, r.StartReceive(10*time.Millisecond))
	timedOut, elapsed := r.WaitForCompletion()

	assert.True(t, timedOut)
	assert.Equal(t, 10*time.Millisecond, elapsed)
	assert.ErrorIs(t, r.ReadReceived(make([]byte, 8)), radio.ErrNoPacket)
}

func TestGivenDropFuncThenFrameLost(t *testing.T) {
	ether := NewEther()
	a := ether.Attach("a", airtime(t))
	b := ether.Attach("b", airtime(t))
	ether.SetDropFunc(func(from string, frame []byte) bool { return from == "a" })

	require.NoError(t, a.Transmit([]byte{9}, time.Second))
	a.WaitForCompletion()
	require.NoError(t, b.StartReceive(5*time.Millisecond))
	timedOut, _ := b.WaitForCompletion()

	assert.True(t, timedOut)
}

func TestGivenOperationInProgressThenBusy(t *testing.T) {
	r := NewEther().Attach("a", airtime(t))
	require.NoError(t, r.StartReceive(time.Millisecond))

	assert.ErrorIs(t, r.Transmit([]byte{1}, time.Second), radio.ErrBusy)
}

func TestGivenShortBufferWhenReadThenError(t *testing.T) {
	r := NewEther().Attach("a", airtime(t))
	r.Inject([]byte{1, 2, 3, 4})
	require.NoError(t, r.StartReceive(10*time.Millisecond))
	r.WaitForCompletion()

	assert.ErrorIs(t, r.ReadReceived(make([]byte, 2)), radio.ErrBufferShort)
}
