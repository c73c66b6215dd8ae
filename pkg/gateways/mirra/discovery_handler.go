package mirra

import (
	"context"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/clock"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/sirupsen/logrus"
)

type discoveryOutcome int

const (
	outcomeFailed discoveryOutcome = iota
	outcomeRegistered
	outcomeReconfigured
	outcomeFull
)

// helloHandler is one link of the chain that answers a HELLO.
type helloHandler interface {
	handle(ctx context.Context, address entities.Address) (discoveryOutcome, error)
	setNext(helloHandler)
}

type baseHandler struct {
	next helloHandler
	g    *Gateway
	log  *logrus.Entry
}

func (bh *baseHandler) setNext(next helloHandler) {
	bh.next = next
}

type duplicateHandler struct {
	baseHandler
}

// A registered node lost its configuration: send it again unchanged.
func (dh *duplicateHandler) handle(ctx context.Context, address entities.Address) (discoveryOutcome, error) {
	node, ok := dh.g.registry.Find(address)
	if !ok {
		return dh.next.handle(ctx, address)
	}
	dh.log.Infof("%s already registered, re-sending its configuration", address)
	config := node.CurrentConfig(clock.Unix(dh.g.clock.Now()))
	if err := dh.g.exchanger.sendConfig(ctx, address, config); err != nil {
		return outcomeFailed, err
	}
	return outcomeReconfigured, nil
}

type capacityHandler struct {
	baseHandler
}

func (ch *capacityHandler) handle(ctx context.Context, address entities.Address) (discoveryOutcome, error) {
	if ch.g.registry.Len() >= ch.g.maxNodes {
		ch.log.Errorf("rejecting %s: registry holds the maximum of %d nodes", address, ch.g.maxNodes)
		return outcomeFull, ErrRegistryFull
	}
	return ch.next.handle(ctx, address)
}

type registrationHandler struct {
	baseHandler
}

// The node is registered tentatively and dropped again when it does not
// acknowledge its CONFIG.
func (rh *registrationHandler) handle(ctx context.Context, address entities.Address) (discoveryOutcome, error) {
	now := clock.Unix(rh.g.clock.Now())
	config := rh.g.newConfig(now, rh.g.nextAvailableSlot(now))
	rh.g.registry.add(entities.NewNode(address, config))

	if err := rh.g.exchanger.sendConfig(ctx, address, config); err != nil {
		rh.g.registry.remove(address)
		return outcomeFailed, err
	}
	rh.g.registry.Sort()
	rh.g.registry.Persist()
	rh.log.Infof("registered %s, first comm at %d", address, config.CommTime)
	return outcomeRegistered, nil
}

func newHelloChain(g *Gateway, log *logrus.Entry) helloHandler {
	duplicate := &duplicateHandler{baseHandler{g: g, log: log}}
	capacity := &capacityHandler{baseHandler{g: g, log: log}}
	registration := &registrationHandler{baseHandler{g: g, log: log}}
	duplicate.setNext(capacity)
	capacity.setNext(registration)
	return duplicate
}
