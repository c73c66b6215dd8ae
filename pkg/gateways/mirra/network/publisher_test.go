package network

import (
	"errors"
	"testing"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/stretchr/testify/assert"
)

const (
	fakeExchange = "mirra"
	fakePrefix   = "fornalab"
)

func createFakeRecord() entities.Record {
	return entities.NewRecord(entities.Address{Gateway: 0x0102, Node: 0x00A7}, 1700000000, []entities.SensorValue{
		{TypeTag: 1, InstanceTag: 0, Value: 21.5},
	})
}

func createFakeMeasurement(gateway entities.Address, record entities.Record) MeasurementSent {
	return MeasurementSent{
		Gateway:   gateway.String(),
		Source:    record.Source.String(),
		Timestamp: record.Timestamp,
		Flags:     record.Flags,
		Values:    record.Values,
	}
}

func TestGivenRecordThenPublishOnNodeTopic(t *testing.T) {
	amqpMock := new(AmqpMock)
	gateway := entities.Address{Gateway: 0x0102}
	record := createFakeRecord()
	options := MessageOptions{Gateway: gateway.String(), Expiration: defaultExpirationTime}

	amqpMock.On("PublishPersistentMessage", fakeExchange, exchangeTypeTopic, "fornalab.0102.00A7", createFakeMeasurement(gateway, record), &options).Return(nil)

	publisher := NewMsgPublisher(amqpMock, fakeExchange, fakePrefix)
	err := publisher.PublishMeasurement(gateway, record)
	assert.Nil(t, err)
	amqpMock.AssertExpectations(t)
}

func TestGivenBrokerFailureThenPublishReturnsError(t *testing.T) {
	amqpMock := new(AmqpMock)
	gateway := entities.Address{Gateway: 0x0102}
	record := createFakeRecord()
	options := MessageOptions{Gateway: gateway.String(), Expiration: defaultExpirationTime}

	amqpMock.On("PublishPersistentMessage", fakeExchange, exchangeTypeTopic, "fornalab.0102.00A7", createFakeMeasurement(gateway, record), &options).Return(errors.New("failed"))

	publisher := NewMsgPublisher(amqpMock, fakeExchange, fakePrefix)
	err := publisher.PublishMeasurement(gateway, record)
	assert.NotNil(t, err)
	amqpMock.AssertExpectations(t)
}

func TestMeasurementRoutingKey(t *testing.T) {
	key := MeasurementRoutingKey("lab", entities.Address{Gateway: 0xBEEF, Node: 0x1})
	assert.Equal(t, "lab.BEEF.0001", key)
}
