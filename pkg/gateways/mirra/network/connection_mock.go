package network

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

type connectionMock struct {
	mock.Mock
}

func (c *connectionMock) dial() error {
	return c.Called().Error(0)
}

func (c *connectionMock) openChannel() error {
	return c.Called().Error(0)
}

func (c *connectionMock) declareExchange(name, kind string) error {
	return c.Called(name, kind).Error(0)
}

func (c *connectionMock) bindQueue(queue, exchange, key string) error {
	return c.Called(queue, exchange, key).Error(0)
}

func (c *connectionMock) consume(queue string) (<-chan amqp.Delivery, error) {
	ret := c.Called(queue)
	deliveries, _ := ret.Get(0).(<-chan amqp.Delivery)
	return deliveries, ret.Error(1)
}

func (c *connectionMock) publish(exchange, key string, msg amqp.Publishing) error {
	return c.Called(exchange, key, msg).Error(0)
}

func (c *connectionMock) closed() bool {
	return c.Called().Bool(0)
}

func (c *connectionMock) close() error {
	return c.Called().Error(0)
}

func (c *connectionMock) notifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.Called().Get(0).(chan *amqp.Error)
}
