package network

import (
	"fmt"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
)

const defaultExpirationTime = ""

type Publisher interface {
	PublishMeasurement(gateway entities.Address, record entities.Record) error
}

type msgPublisher struct {
	amqp        Messaging
	exchange    string
	topicPrefix string
}

func NewMsgPublisher(amqp Messaging, exchange, topicPrefix string) Publisher {
	return &msgPublisher{amqp: amqp, exchange: exchange, topicPrefix: topicPrefix}
}

func (mp *msgPublisher) PublishMeasurement(gateway entities.Address, record entities.Record) error {
	options := MessageOptions{
		Gateway:    gateway.String(),
		Expiration: defaultExpirationTime,
	}

	message := MeasurementSent{
		Gateway:   gateway.String(),
		Source:    record.Source.String(),
		Timestamp: record.Timestamp,
		Flags:     record.Flags,
		Values:    record.Values,
	}

	return mp.amqp.PublishPersistentMessage(mp.exchange, exchangeTypeTopic, MeasurementRoutingKey(mp.topicPrefix, record.Source), message, &options)
}

// MeasurementRoutingKey is "<prefix>.<gateway>.<node>" with both ids in hex.
func MeasurementRoutingKey(prefix string, source entities.Address) string {
	return fmt.Sprintf("%s.%04X.%04X", prefix, source.Gateway, source.Node)
}
