package mirra

import (
	"context"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/protocol"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// exchanger runs the three radio exchanges the gateway takes part in.
type exchanger interface {
	listenHello(ctx context.Context) (entities.Address, error)
	sendConfig(ctx context.Context, node entities.Address, config entities.TimeConfig) error
	receiveData(ctx context.Context, node entities.Address, maxMessages uint32) ([]entities.Record, error)
}

type radioExchanger struct {
	link    *protocol.Link
	gateway uint16
	timing  entities.TimingConfig
	log     *logrus.Entry
}

func newRadioExchanger(r radio.Radio, gateway uint16, timing entities.TimingConfig, log *logrus.Entry) *radioExchanger {
	return &radioExchanger{
		link:    protocol.NewLink(r, entities.Address{Gateway: gateway}, timing.Guard(), log),
		gateway: gateway,
		timing:  timing,
		log:     log,
	}
}

// listenHello waits one discovery timeout for a HELLO addressed to this
// gateway or to any gateway.
func (e *radioExchanger) listenHello(ctx context.Context) (entities.Address, error) {
	e.link.Reset()
	e.link.SetAddress(entities.Address{Gateway: e.gateway})
	e.link.SetBudget(e.timing.DiscoveryTimeout())
	messages, err := e.link.Receive(ctx, protocol.HeaderSize, protocol.TypeHello)
	if err != nil {
		return entities.Address{}, err
	}
	return entities.Address{Gateway: e.gateway, Node: messages[0].Address.Node}, nil
}

func (e *radioExchanger) sendConfig(ctx context.Context, node entities.Address, config entities.TimeConfig) error {
	e.link.Reset()
	e.link.SetAddress(node)
	if _, err := e.link.Push(protocol.Config(config)); err != nil {
		return err
	}
	e.link.SetBudget(e.timing.ConfigTimeout())
	return errors.Wrapf(e.link.Close(ctx), "config to %s", node)
}

// receiveData listens from the start of the padded comm period until the
// node's DATA generation is complete. Empty DATA messages carry no record.
func (e *radioExchanger) receiveData(ctx context.Context, node entities.Address, maxMessages uint32) ([]entities.Record, error) {
	e.link.Reset()
	e.link.SetAddress(node)
	e.link.SetBudget(2*e.timing.Padding() + time.Duration(max(maxMessages, 1))*e.timing.DataTimeout())
	messages, err := e.link.Receive(ctx, protocol.DataSize(protocol.MaxDataValues), protocol.TypeData)
	if err != nil {
		return nil, errors.Wrapf(err, "data from %s", node)
	}
	if uint32(len(messages)) > max(maxMessages, 1) {
		e.log.Warnf("%s sent %d messages, allowed %d", node, len(messages), maxMessages)
	}

	var records []entities.Record
	for _, m := range messages {
		data, ok := m.Body.(protocol.Data)
		if !ok || len(data.Values) == 0 {
			continue
		}
		records = append(records, entities.NewRecord(node, data.Time, data.Values))
	}
	return records, nil
}
