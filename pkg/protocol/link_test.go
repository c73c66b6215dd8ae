package protocol

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio/sim"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuard = 20 * time.Millisecond

func testAirtime(t *testing.T) radio.Airtime {
	a, err := radio.NewAirtime(entities.RadioConfig{SpreadingFactor: 7, BandwidthKHz: 125, CodingRate: 5, Preamble: 8})
	require.NoError(t, err)
	return a
}

func newTestLink(r radio.Radio, address entities.Address) *Link {
	logger, _ := test.NewNullLogger()
	return NewLink(r, address, testGuard, logrus.NewEntry(logger))
}

func frameOf(t *testing.T, address entities.Address, body Body, seq uint8, last bool) []byte {
	m := NewMessage(address, body)
	m.Seq = seq
	m.Last = last
	b, err := Encode(m)
	require.NoError(t, err)
	return b
}

func TestGivenNOutgoingMessagesWhenSendThenOnlySlotNMinusOneIsLast(t *testing.T) {
	for n := 1; n <= WindowCapacity; n++ {
		ether := sim.NewEther()
		r := ether.Attach("node", testAirtime(t))
		link := newTestLink(r, testAddress)
		for i := 0; i < n; i++ {
			_, err := link.Push(Data{Time: uint32(i)})
			require.NoError(t, err)
		}
		link.SetBudget(time.Minute)

		require.NoError(t, link.Send(context.Background()))

		sent := r.Sent()
		require.Len(t, sent, n)
		for i, frame := range sent {
			h, err := DecodeHeader(frame)
			require.NoError(t, err)
			assert.Equal(t, uint8(i), h.Seq)
			assert.Equal(t, i == n-1, h.Last, "slot %d of %d", i, n)
			assert.Equal(t, testAddress, h.Address)
		}
	}
}

func TestGivenSameAckTwiceWhenMergedThenPendingSetUnchanged(t *testing.T) {
	link := newTestLink(sim.NewEther().Attach("gw", testAirtime(t)), testAddress)
	for i := 0; i < 4; i++ {
		_, err := link.Push(Data{Time: uint32(i)})
		require.NoError(t, err)
	}
	ack := frameOf(t, testAddress, Ack{Bits: 0b0101}, 0, true)

	assert.False(t, link.merge(ack))
	once := link.Outgoing().Acks().Clone()
	assert.False(t, link.merge(ack))

	assert.True(t, once.Equal(link.Outgoing().Acks()))
	assert.True(t, link.Outgoing().Acked(0))
	assert.False(t, link.Outgoing().Acked(1))
	assert.True(t, link.Outgoing().Acked(2))
	assert.False(t, link.Outgoing().Acked(3))
}

func TestGivenBurstWithOneLostFrameWhenReceivedThenAllAckedAndLastOnlyOnFinal(t *testing.T) {
	ether := sim.NewEther()
	airtime := testAirtime(t)
	nodeRadio := ether.Attach("node", airtime)
	gatewayRadio := ether.Attach("gateway", airtime)
	var dropped atomic.Bool
	ether.SetDropFunc(func(from string, frame []byte) bool {
		if from == "node" && !dropped.Load() && MessageType(frame[0]&typeMask) == TypeData && frame[0]>>seqShift == 1 {
			dropped.Store(true)
			return true
		}
		return false
	})

	node := newTestLink(nodeRadio, testAddress)
	gateway := newTestLink(gatewayRadio, testAddress)
	for i := 0; i < 3; i++ {
		_, err := node.Push(Data{Time: uint32(100 + i), Values: []entities.SensorValue{{TypeTag: 1, Value: float32(i)}}})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var nodeErr error
	var nodeConfig []Message
	wg.Add(1)
	go func() {
		defer wg.Done()
		node.SetBudget(5 * time.Second)
		nodeConfig, nodeErr = node.Receive(context.Background(), ConfigSize, TypeConfig)
		if nodeErr == nil {
			node.SetBudget(time.Second)
			nodeErr = node.Acknowledge(context.Background())
		}
	}()

	gateway.SetBudget(5 * time.Second)
	msgs, err := gateway.Receive(context.Background(), DataSize(1), TypeData)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, dropped.Load())
	for i := uint(0); i < 3; i++ {
		assert.True(t, gateway.Incoming().Acks().Test(i))
	}
	assert.Equal(t, uint(3), gateway.Incoming().Acks().Count())
	for i, m := range msgs {
		assert.Equal(t, i == 2, m.Last, "message %d", i)
		assert.Equal(t, uint32(100+i), m.Body.(Data).Time)
	}

	_, err = gateway.Push(Config{CommInterval: 3600, CommTime: 7200, MaxMessages: 3})
	require.NoError(t, err)
	gateway.SetBudget(5 * time.Second)
	require.NoError(t, gateway.Close(context.Background()))
	assert.Equal(t, StateDone, gateway.State())

	wg.Wait()
	require.NoError(t, nodeErr)
	require.Len(t, nodeConfig, 1)
	assert.Equal(t, uint32(7200), nodeConfig[0].Body.(Config).CommTime)
	assert.True(t, node.Outgoing().Empty())
}

func TestGivenFrameFromForeignGatewayThenDiscarded(t *testing.T) {
	r := sim.NewEther().Attach("node", testAirtime(t))
	link := newTestLink(r, testAddress)
	foreign := entities.Address{Gateway: 0x0999, Node: testAddress.Node}
	r.Inject(frameOf(t, foreign, Config{CommTime: 1}, 0, true))
	r.Inject(frameOf(t, testAddress, Config{CommTime: 2}, 0, true))
	link.SetBudget(2 * time.Second)

	msgs, err := link.Receive(context.Background(), ConfigSize, TypeConfig)

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint32(2), msgs[0].Body.(Config).CommTime)
}

func TestGivenSilentPeerWhenReceiveThenBudgetExhausted(t *testing.T) {
	r := sim.NewEther().Attach("node", testAirtime(t))
	link := newTestLink(r, testAddress)
	_, err := link.Push(Hello{})
	require.NoError(t, err)
	link.SetBudget(300 * time.Millisecond)

	_, err = link.Receive(context.Background(), ConfigSize, TypeConfig)

	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, StateFailed, link.State())
	assert.Equal(t, time.Duration(0), link.Budget())
	assert.GreaterOrEqual(t, len(r.Sent()), 2, "hello is repeated while waiting")
}

func TestGivenNothingPendingWhenUnexpectedTypeThenExchangeFails(t *testing.T) {
	r := sim.NewEther().Attach("gw", testAirtime(t))
	link := newTestLink(r, testAddress)
	r.Inject(frameOf(t, testAddress, Data{Time: 1}, 0, true))
	link.SetBudget(2 * time.Second)

	_, err := link.Receive(context.Background(), ConfigSize, TypeConfig)

	assert.ErrorIs(t, err, ErrUnexpectedType)
}

func TestGivenPendingConfigWhenPeerRepeatsDataThenConfigResentAndClosed(t *testing.T) {
	r := sim.NewEther().Attach("gw", testAirtime(t))
	link := newTestLink(r, testAddress)
	_, err := link.Push(Config{CommTime: 10})
	require.NoError(t, err)
	r.Inject(frameOf(t, testAddress, Data{Time: 1}, 0, true))
	r.Inject(frameOf(t, testAddress, Ack{Bits: 1}, 0, true))
	link.SetBudget(2 * time.Second)

	require.NoError(t, link.Close(context.Background()))

	assert.Len(t, r.Sent(), 2)
}

func TestGivenCancelledContextWhenReceiveThenAborted(t *testing.T) {
	link := newTestLink(sim.NewEther().Attach("gw", testAirtime(t)), testAddress)
	link.SetBudget(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := link.Receive(ctx, HeaderSize, TypeHello)

	assert.ErrorIs(t, err, ErrAborted)
}
