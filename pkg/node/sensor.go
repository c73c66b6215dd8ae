package node

import (
	"context"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/clock"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/protocol"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const stateKey = "node"

var ErrNotRegistered = errors.New("node has no gateway")

// Sensor is the radio side of a sensor node: it joins a gateway and hands
// over its measurements at the comm times the gateway assigns.
type Sensor struct {
	id           uint16
	timing       entities.TimingConfig
	link         *protocol.Link
	clock        clock.Clock
	store        storage.Store
	measurements storage.MeasurementLog
	state        entities.Node
	log          *logrus.Entry
}

func NewSensor(conf entities.NodeConfig, r radio.Radio, store storage.Store, measurements storage.MeasurementLog, c clock.Clock, log *logrus.Entry) (*Sensor, error) {
	state, err := storage.GetOrDefault(store, stateKey, entities.Node{})
	if err != nil {
		return nil, errors.Wrap(err, "restore node state")
	}
	state.Address.Node = conf.NodeID

	return &Sensor{
		id:           conf.NodeID,
		timing:       conf.Timing,
		link:         protocol.NewLink(r, state.Address, conf.Timing.Guard(), log.WithField("layer", "link")),
		clock:        c,
		store:        store,
		measurements: measurements,
		state:        state,
		log:          log,
	}, nil
}

// State returns the schedule the node currently runs on.
func (s *Sensor) State() entities.Node {
	return s.state
}

func (s *Sensor) Registered() bool {
	return s.state.Address.Gateway != 0
}

// Sample stores one reading taken now for the next comm period.
func (s *Sensor) Sample(values []entities.SensorValue) error {
	if len(values) > protocol.MaxDataValues {
		return errors.Wrapf(protocol.ErrTooManyValues, "%d values", len(values))
	}
	record := entities.NewRecord(s.state.Address, clock.Unix(s.clock.Now()), values)
	return s.measurements.Append(record)
}

// Discover announces the node with HELLO until a gateway answers with a
// CONFIG or the discovery timeout runs out.
func (s *Sensor) Discover(ctx context.Context) error {
	s.link.Reset()
	s.link.SetAddress(entities.Address{Node: s.id})
	if _, err := s.link.Push(protocol.Hello{}); err != nil {
		return err
	}
	s.link.SetBudget(s.timing.DiscoveryTimeout())
	messages, err := s.link.Receive(ctx, protocol.ConfigSize, protocol.TypeConfig)
	if err != nil {
		return errors.Wrap(err, "discovery")
	}

	gateway := messages[0].Address.Gateway
	s.state.Address = entities.Address{Gateway: gateway, Node: s.id}
	s.apply(entities.TimeConfig(messages[0].Body.(protocol.Config)))
	s.acknowledge(ctx)
	s.persist()
	s.log.Infof("joined gateway %04X, first comm at %d", gateway, s.state.NextCommTime)
	return nil
}

// CommPeriod sleeps until the assigned comm time, sends the pending
// measurements and takes the next CONFIG. A failed period moves the
// schedule on by whole comm intervals.
func (s *Sensor) CommPeriod(ctx context.Context) error {
	if !s.Registered() {
		return ErrNotRegistered
	}
	records, err := s.measurements.Unuploaded(int(min(max(s.state.MaxMessages, 1), protocol.WindowCapacity)))
	if err != nil {
		return errors.Wrap(err, "read measurements")
	}

	s.link.Reset()
	s.link.SetAddress(s.state.Address)
	if err := s.pushRecords(records); err != nil {
		return err
	}
	if err := s.clock.SleepUntil(ctx, clock.FromUnix(s.state.NextCommTime)); err != nil {
		return err
	}

	s.link.SetBudget(time.Duration(s.timing.WindowLength(s.state.MaxMessages)+s.timing.PaddingSec) * time.Second)
	messages, err := s.link.Receive(ctx, protocol.ConfigSize, protocol.TypeConfig)
	if err != nil {
		s.state.NaiveAdvance(clock.Unix(s.clock.Now()), entities.DefaultCommInterval)
		s.persist()
		return errors.Wrap(err, "comm period")
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := s.measurements.MarkUploaded(ids...); err != nil {
		s.log.Errorf("marking %d records sent: %v", len(ids), err)
	}
	s.acknowledge(ctx)
	s.apply(entities.TimeConfig(messages[0].Body.(protocol.Config)))
	s.persist()
	return nil
}

// NextWake is shortly before the next comm time.
func (s *Sensor) NextWake() time.Time {
	return clock.FromUnix(s.state.NextCommTime - s.timing.WakeBeforeSec)
}

// pushRecords queues one DATA message per record, or a single empty one so
// the gateway still gets to hand out the next CONFIG.
func (s *Sensor) pushRecords(records []entities.Record) error {
	if len(records) == 0 {
		_, err := s.link.Push(protocol.Data{Time: clock.Unix(s.clock.Now())})
		return err
	}
	for _, r := range records {
		if _, err := s.link.Push(protocol.Data{Time: r.Timestamp, Values: r.Values}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sensor) acknowledge(ctx context.Context) {
	s.link.SetAddress(s.state.Address)
	s.link.SetBudget(s.timing.ConfigTimeout())
	if err := s.link.Acknowledge(ctx); err != nil {
		s.log.Warnf("acknowledging config: %v", err)
	}
}

func (s *Sensor) apply(config entities.TimeConfig) {
	if config.SampleInterval == 0 {
		config.SampleInterval = entities.DefaultNodeSampleInterval
	}
	if config.SampleRounding == 0 {
		config.SampleRounding = entities.DefaultNodeSampleRounding
	}
	if skew := int64(config.CurTime) - int64(clock.Unix(s.clock.Now())); skew != 0 {
		s.log.Debugf("gateway clock differs by %ds", skew)
	}
	s.state.Configure(config)
}

func (s *Sensor) persist() {
	if err := s.store.Set(stateKey, s.state); err != nil {
		s.log.Errorf("persisting node state: %v", err)
	}
}
