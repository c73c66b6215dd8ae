package mirra

import (
	"fmt"
	"strings"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/gateways/mirra/network"
	"github.com/pkg/errors"
)

// NodeUpdate changes the sampling of one node from its next contact on.
type NodeUpdate struct {
	Address        entities.Address
	SampleInterval uint32
	SampleRounding uint32
	SampleOffset   uint32
}

// ParseNodeUpdate reads "AAAA:BBBB/interval/rounding/offset".
func ParseNodeUpdate(command string) (NodeUpdate, error) {
	parts := strings.Split(strings.TrimSpace(command), "/")
	if len(parts) != 4 {
		return NodeUpdate{}, errors.Wrapf(ErrInvalidUpdate, "%q", command)
	}
	address, err := entities.ParseAddress(parts[0])
	if err != nil {
		return NodeUpdate{}, errors.Wrapf(ErrInvalidUpdate, "%q: %v", command, err)
	}
	u := NodeUpdate{Address: address}
	if _, err := fmt.Sscanf(strings.Join(parts[1:], " "), "%d %d %d", &u.SampleInterval, &u.SampleRounding, &u.SampleOffset); err != nil {
		return NodeUpdate{}, errors.Wrapf(ErrInvalidUpdate, "%q: %v", command, err)
	}
	if u.SampleInterval == 0 {
		return NodeUpdate{}, errors.Wrapf(ErrInvalidUpdate, "%q: zero sample interval", command)
	}
	return u, nil
}

// UpdateNode stores new sampling parameters for a registered node.
func (g *Gateway) UpdateNode(u NodeUpdate) error {
	node, ok := g.registry.Find(u.Address)
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "%s", u.Address)
	}
	node.SampleInterval = u.SampleInterval
	node.SampleRounding = u.SampleRounding
	node.SampleOffset = u.SampleOffset
	g.registry.update(node)
	g.registry.Persist()
	return nil
}

// SubscribeNodeUpdates feeds the gateway with node update commands from
// subscriber. The gateway keeps running without updates when the
// subscription fails.
func (g *Gateway) SubscribeNodeUpdates(subscriber network.Subscriber, buffer int) error {
	updates := make(chan network.InMsg, buffer)
	if err := subscriber.SubscribeToNodeUpdates(updates); err != nil {
		g.log.Errorf("node updates disabled: %v", err)
		return err
	}
	g.SetNodeUpdates(updates)
	return nil
}

func (g *Gateway) applyNodeUpdates() {
	if g.updates == nil {
		return
	}
	for {
		select {
		case msg := <-g.updates:
			u, err := ParseNodeUpdate(string(msg.Body))
			if err == nil {
				err = g.UpdateNode(u)
			}
			if err != nil {
				g.log.Warnf("node update: %v", err)
				continue
			}
			g.log.Infof("%s now samples every %ds", u.Address, u.SampleInterval)
		default:
			return
		}
	}
}
