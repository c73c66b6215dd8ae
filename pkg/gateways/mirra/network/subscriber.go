package network

import "fmt"

const (
	bindingKeyNodeUpdate = "node.update"
	queueNodeUpdates     = "mirra-gateway-%04X-updates"
)

type Subscriber interface {
	SubscribeToNodeUpdates(msgChan chan InMsg) error
}

type msgSubscriber struct {
	amqp     Messaging
	exchange string
	gateway  uint16
}

func NewMsgSubscriber(amqp Messaging, exchange string, gateway uint16) Subscriber {
	return &msgSubscriber{amqp: amqp, exchange: exchange, gateway: gateway}
}

func (ms *msgSubscriber) SubscribeToNodeUpdates(msgChan chan InMsg) error {
	return ms.amqp.OnMessage(msgChan, fmt.Sprintf(queueNodeUpdates, ms.gateway), ms.exchange, exchangeTypeTopic, bindingKeyNodeUpdate)
}
