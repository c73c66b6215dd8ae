package network

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// connection is the part of an AMQP session the handler relies on.
type connection interface {
	dial() error
	openChannel() error
	declareExchange(name, kind string) error
	bindQueue(queue, exchange, key string) error
	consume(queue string) (<-chan amqp.Delivery, error)
	publish(exchange, key string, msg amqp.Publishing) error
	closed() bool
	close() error
	notifyClose(receiver chan *amqp.Error) chan *amqp.Error
}

// AmqpSession is one broker connection with a single channel.
type AmqpSession struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAmqpSession(url string) *AmqpSession {
	return &AmqpSession{url: url}
}

func (s *AmqpSession) dial() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *AmqpSession) openChannel() error {
	channel, err := s.conn.Channel()
	if err != nil {
		return err
	}
	s.channel = channel
	return nil
}

func (s *AmqpSession) declareExchange(name, kind string) error {
	return s.channel.ExchangeDeclare(name, kind, durable, deleteWhenUnused, internal, noWait, nil)
}

// bindQueue declares a durable queue and routes key from exchange into it.
func (s *AmqpSession) bindQueue(queue, exchange, key string) error {
	if _, err := s.channel.QueueDeclare(queue, durable, deleteWhenUnused, exclusive, noWait, nil); err != nil {
		return err
	}
	return s.channel.QueueBind(queue, key, exchange, noWait, nil)
}

func (s *AmqpSession) consume(queue string) (<-chan amqp.Delivery, error) {
	return s.channel.Consume(queue, consumerTag, noAck, exclusive, noLocal, noWait, nil)
}

func (s *AmqpSession) publish(exchange, key string, msg amqp.Publishing) error {
	return s.channel.Publish(exchange, key, false, false, msg)
}

func (s *AmqpSession) closed() bool {
	return s.conn == nil || s.conn.IsClosed()
}

func (s *AmqpSession) close() error {
	if s.channel != nil {
		if err := s.channel.Close(); err != nil && !s.closed() {
			return err
		}
	}
	if s.closed() {
		return nil
	}
	return s.conn.Close()
}

func (s *AmqpSession) notifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return s.conn.NotifyClose(receiver)
}
