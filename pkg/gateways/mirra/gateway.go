package mirra

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/clock"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/gateways/mirra/network"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Gateway schedules the comm periods of its registered nodes, collects their
// measurements and uploads them.
type Gateway struct {
	address      entities.Address
	maxNodes     int
	timing       entities.TimingConfig
	registry     *Registry
	exchanger    exchanger
	clock        clock.Clock
	measurements storage.MeasurementLog
	uploader     *Uploader
	updates      <-chan network.InMsg
	hello        helloHandler
	log          *logrus.Entry
}

func NewGateway(conf entities.GatewayConfig, r radio.Radio, store storage.Store, measurements storage.MeasurementLog, c clock.Clock, log *logrus.Entry) *Gateway {
	return newGateway(conf, newRadioExchanger(r, conf.GatewayID, conf.Timing, log.WithField("layer", "link")), store, measurements, c, log)
}

func newGateway(conf entities.GatewayConfig, ex exchanger, store storage.Store, measurements storage.MeasurementLog, c clock.Clock, log *logrus.Entry) *Gateway {
	g := &Gateway{
		address:      entities.Address{Gateway: conf.GatewayID},
		maxNodes:     conf.MaxNodes,
		timing:       conf.Timing,
		registry:     LoadRegistry(store, conf.Parameters, log),
		exchanger:    ex,
		clock:        c,
		measurements: measurements,
		log:          log,
	}
	g.hello = newHelloChain(g, log.WithField("phase", "discovery"))
	return g
}

// SetUploader enables the upload period after each comm period.
func (g *Gateway) SetUploader(u *Uploader) {
	g.uploader = u
}

// SetNodeUpdates sets the source of node update commands drained at wake.
func (g *Gateway) SetNodeUpdates(updates <-chan network.InMsg) {
	g.updates = updates
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Discovery answers HELLO messages until ctx is cancelled, the registry
// fills up, or a new node arrives while it is full.
func (g *Gateway) Discovery(ctx context.Context) error {
	g.log.Info("discovery started")
	for {
		if ctx.Err() != nil {
			g.log.Info("discovery stopped")
			return nil
		}
		address, err := g.exchanger.listenHello(ctx)
		if err != nil {
			if ctx.Err() == nil {
				g.log.Debugf("no hello: %v", err)
			}
			continue
		}

		outcome, err := g.hello.handle(ctx, address)
		switch outcome {
		case outcomeFull:
			return err
		case outcomeFailed:
			g.log.Warnf("%s did not take its configuration: %v", address, err)
		case outcomeRegistered:
			g.log.Infof("%d of %d nodes registered", g.registry.Len(), g.maxNodes)
			if g.registry.Len() >= g.maxNodes {
				g.log.Info("registry full, discovery finished")
				return nil
			}
		}
	}
}

// CommPeriod serves the batch of nodes due next, then persists the
// schedule and the received measurements.
func (g *Gateway) CommPeriod(ctx context.Context) error {
	g.registry.Sort()
	nodes := g.registry.Nodes()
	due := nodes[:batch(nodes, g.timing)]

	var records []entities.Record
	for i, node := range due {
		if ctx.Err() != nil {
			break
		}
		updated, received, err := g.serve(ctx, node, due[i+1:])
		records = append(records, received...)
		if err != nil {
			g.log.Warnf("comm period of %s failed: %v", node.Address, err)
			updated = node
			updated.NaiveAdvance(clock.Unix(g.clock.Now()), g.registry.Parameters().CommInterval)
		}
		g.registry.update(updated)
	}

	g.registry.Sort()
	g.registry.Persist()
	if len(records) > 0 {
		if err := g.measurements.Append(records...); err != nil {
			return errors.Wrap(err, "store measurements")
		}
	}
	return ctx.Err()
}

// serve runs the comm period of node. pending are the nodes of the batch
// still to be served after it.
func (g *Gateway) serve(ctx context.Context, node entities.Node, pending []entities.Node) (entities.Node, []entities.Record, error) {
	if clock.Unix(g.clock.Now()) > node.NextCommTime {
		return node, nil, errors.Wrapf(ErrFaultySchedule, "%s was due at %d", node.Address, node.NextCommTime)
	}
	if err := g.clock.SleepUntil(ctx, clock.FromUnix(node.NextCommTime).Add(-g.timing.Padding())); err != nil {
		return node, nil, err
	}

	records, err := g.exchanger.receiveData(ctx, node.Address, node.MaxMessages)
	if err != nil {
		return node, nil, err
	}

	params := g.registry.Parameters()
	commTime := node.NextCommTime + params.CommInterval
	if node.IsLost(params.CommInterval) && !allLost(g.registry.nodes, params.CommInterval) {
		nodes := projectServed(g.registry.nodes, pending, params.CommInterval)
		commTime = nextAvailableSlot(nodes, params.CommInterval, clock.Unix(g.clock.Now()), g.timing)
	}
	config := entities.TimeConfig{
		CurTime:        clock.Unix(g.clock.Now()),
		SampleInterval: node.SampleInterval,
		SampleRounding: node.SampleRounding,
		SampleOffset:   node.SampleOffset,
		CommInterval:   params.CommInterval,
		CommTime:       commTime,
		MaxMessages:    MaxMessages(params.CommInterval, node.SampleInterval),
	}
	if err := g.exchanger.sendConfig(ctx, node.Address, config); err != nil {
		return node, records, err
	}
	node.Configure(config)
	return node, records, nil
}

// Wake applies pending node updates, runs the comm and upload periods when
// the first node is due and returns when to wake next.
func (g *Gateway) Wake(ctx context.Context) (time.Time, error) {
	g.applyNodeUpdates()

	var err error
	if g.registry.Len() > 0 && g.due() {
		if err = g.CommPeriod(ctx); err != nil {
			g.log.Errorf("comm period: %v", err)
		}
		if g.uploader != nil && ctx.Err() == nil {
			if _, uploadErr := g.uploader.UploadPeriod(ctx); uploadErr != nil {
				g.log.Errorf("upload period: %v", uploadErr)
			}
		}
	}
	return g.NextWake(), err
}

func (g *Gateway) due() bool {
	first := g.registry.nodes[0]
	return clock.Unix(g.clock.Now())+g.timing.WakeBeforeSec+g.timing.PaddingSec >= first.NextCommTime
}

// NextWake is shortly before the earliest comm time, or one default sleep
// from now on an empty network.
func (g *Gateway) NextWake() time.Time {
	if g.registry.Len() == 0 {
		return g.clock.Now().Add(time.Duration(g.timing.DefaultSleepSec) * time.Second)
	}
	g.registry.Sort()
	return clock.FromUnix(g.registry.nodes[0].NextCommTime - g.timing.WakeBeforeSec)
}

// AddNode registers address without a radio exchange. The node picks up its
// schedule at its next discovery.
func (g *Gateway) AddNode(address entities.Address) (entities.Node, error) {
	if address.Node == 0 || address != g.address.WithNode(address.Node) {
		return entities.Node{}, errors.Wrapf(entities.ErrInvalidAddress, "%s is not a node of gateway %04X", address, g.address.Gateway)
	}
	if _, ok := g.registry.Find(address); ok {
		return entities.Node{}, errors.Wrapf(ErrDuplicateNode, "%s", address)
	}
	if g.registry.Len() >= g.maxNodes {
		return entities.Node{}, ErrRegistryFull
	}
	now := clock.Unix(g.clock.Now())
	node := entities.NewNode(address, g.newConfig(now, g.nextAvailableSlot(now)))
	g.registry.add(node)
	g.registry.Sort()
	g.registry.Persist()
	return node, nil
}

func (g *Gateway) RemoveNode(address entities.Address) error {
	if !g.registry.remove(address) {
		return errors.Wrapf(ErrUnknownNode, "%s", address)
	}
	g.registry.Persist()
	return nil
}

// Schedule returns the registered nodes in comm order.
func (g *Gateway) Schedule() []entities.Node {
	g.registry.Sort()
	return g.registry.Nodes()
}

func (g *Gateway) WriteSchedule(w io.Writer) error {
	params := g.registry.Parameters()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "gateway %s\tcomm interval %ds\tsample interval %ds\n", g.address, params.CommInterval, params.SampleInterval)
	fmt.Fprintln(tw, "NODE\tNEXT COMM\tLAST COMM\tINTERVAL\tSAMPLE\tMAX MSG\tERRORS\tLOST")
	for _, n := range g.Schedule() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%t\n",
			n.Address,
			clock.FromUnix(n.NextCommTime).UTC().Format(time.RFC3339),
			clock.FromUnix(n.LastCommTime).UTC().Format(time.RFC3339),
			n.CommInterval, n.SampleInterval, n.MaxMessages, n.Errors,
			n.IsLost(params.CommInterval))
	}
	return tw.Flush()
}

// SetParameters changes the global intervals. Nodes running on another
// comm interval become lost and are rescheduled at their next contact.
func (g *Gateway) SetParameters(p entities.Parameters) error {
	if p.CommInterval == 0 || p.SampleInterval == 0 {
		return errors.Wrap(entities.ErrInvalidConfig, "intervals must be positive")
	}
	g.registry.setParameters(p)
	g.registry.Persist()
	return nil
}

func (g *Gateway) nextAvailableSlot(now uint32) uint32 {
	return nextAvailableSlot(g.registry.nodes, g.registry.Parameters().CommInterval, now, g.timing)
}

func (g *Gateway) newConfig(now, commTime uint32) entities.TimeConfig {
	params := g.registry.Parameters()
	return entities.TimeConfig{
		CurTime:        now,
		SampleInterval: params.SampleInterval,
		SampleRounding: params.SampleRounding,
		SampleOffset:   params.SampleOffset,
		CommInterval:   params.CommInterval,
		CommTime:       commTime,
		MaxMessages:    MaxMessages(params.CommInterval, params.SampleInterval),
	}
}
