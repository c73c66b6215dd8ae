package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/clock"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/protocol"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio/sim"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNow = 1700000000

func testTiming() entities.TimingConfig {
	return entities.TimingConfig{
		PaddingSec:         1,
		WakeBeforeSec:      3,
		DefaultSleepSec:    3600,
		DiscoveryTimeoutMs: 300,
		ConfigTimeoutMs:    1000,
		DataTimeoutMs:      1000,
		GuardMs:            20,
	}
}

func testAirtime(t *testing.T) radio.Airtime {
	a, err := radio.NewAirtime(entities.RadioConfig{SpreadingFactor: 7, BandwidthKHz: 125, CodingRate: 5, Preamble: 8})
	require.Nil(t, err)
	return a
}

type sensorFixture struct {
	sensor       *Sensor
	radio        *sim.Radio
	clock        *clock.Manual
	store        *storage.YAMLStore
	measurements *storage.SQLiteLog
}

func newSensorFixture(t *testing.T, ether *sim.Ether, state *entities.Node) *sensorFixture {
	store, err := storage.NewYAMLStore(filepath.Join(t.TempDir(), "node.yaml"))
	require.Nil(t, err)
	if state != nil {
		require.Nil(t, store.Set(stateKey, *state))
	}
	measurements, err := storage.OpenSQLiteLog(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { measurements.Close() })

	logger, _ := test.NewNullLogger()
	r := ether.Attach("node", testAirtime(t))
	c := clock.NewManual(clock.FromUnix(testNow))
	conf := entities.NodeConfig{NodeID: 0x00A7, Timing: testTiming()}
	sensor, err := NewSensor(conf, r, store, measurements, c, logrus.NewEntry(logger))
	require.Nil(t, err)
	return &sensorFixture{sensor: sensor, radio: r, clock: c, store: store, measurements: measurements}
}

func registeredState(next uint32) *entities.Node {
	return &entities.Node{
		Address:        entities.Address{Gateway: 0x0102, Node: 0x00A7},
		SampleInterval: 1200,
		SampleRounding: 1200,
		CommInterval:   3600,
		NextCommTime:   next,
	}
}

func TestGivenNoStoredStateThenSensorIsUnregistered(t *testing.T) {
	f := newSensorFixture(t, sim.NewEther(), nil)

	assert.False(t, f.sensor.Registered())
	assert.Equal(t, entities.Address{Node: 0x00A7}, f.sensor.State().Address)
	assert.ErrorIs(t, f.sensor.CommPeriod(context.Background()), ErrNotRegistered)
}

func TestGivenStoredStateThenSensorResumesSchedule(t *testing.T) {
	f := newSensorFixture(t, sim.NewEther(), registeredState(testNow+600))

	assert.True(t, f.sensor.Registered())
	assert.Equal(t, clock.FromUnix(testNow+597), f.sensor.NextWake())
}

func TestGivenTooManyValuesThenSampleIsRejected(t *testing.T) {
	f := newSensorFixture(t, sim.NewEther(), nil)

	err := f.sensor.Sample(make([]entities.SensorValue, protocol.MaxDataValues+1))
	assert.ErrorIs(t, err, protocol.ErrTooManyValues)
	assert.Nil(t, f.sensor.Sample([]entities.SensorValue{{TypeTag: 1, Value: 3.5}}))

	pending, err := f.measurements.Unuploaded(10)
	require.Nil(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint32(testNow), pending[0].Timestamp)
}

func TestGivenNoGatewayThenDiscoveryRepeatsHelloUntilTimeout(t *testing.T) {
	f := newSensorFixture(t, sim.NewEther(), nil)

	err := f.sensor.Discover(context.Background())
	assert.ErrorIs(t, err, protocol.ErrBudgetExhausted)
	assert.False(t, f.sensor.Registered())

	sent := f.radio.Sent()
	require.NotEmpty(t, sent)
	for _, frame := range sent {
		h, err := protocol.DecodeHeader(frame)
		require.Nil(t, err)
		assert.Equal(t, protocol.TypeHello, h.Type)
		assert.Equal(t, entities.Address{Node: 0x00A7}, h.Address)
	}
}

func TestGivenSilentGatewayThenCommPeriodAdvancesNaively(t *testing.T) {
	f := newSensorFixture(t, sim.NewEther(), registeredState(testNow+10))

	err := f.sensor.CommPeriod(context.Background())
	assert.ErrorIs(t, err, protocol.ErrBudgetExhausted)

	state := f.sensor.State()
	assert.Equal(t, uint32(testNow+10+3600), state.NextCommTime)
	assert.Equal(t, uint32(1), state.Errors)

	var persisted entities.Node
	found, err := f.store.Get(stateKey, &persisted)
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, state, persisted)

	m, err := protocol.Decode(f.radio.Sent()[0], protocol.TypeData)
	require.Nil(t, err)
	assert.Empty(t, m.Body.(protocol.Data).Values)
}

func TestGivenAbortedContextThenCommPeriodStops(t *testing.T) {
	f := newSensorFixture(t, sim.NewEther(), registeredState(testNow+10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := f.sensor.CommPeriod(ctx)
	assert.NotNil(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
