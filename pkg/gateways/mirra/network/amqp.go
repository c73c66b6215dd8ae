package network

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeTypeTopic = "topic"

	durable          = true
	deleteWhenUnused = false
	exclusive        = false
	noWait           = false
	internal         = false
	noAck            = true
	noLocal          = false
	consumerTag      = ""
)

// Messaging is the broker session used by publishers and subscribers.
type Messaging interface {
	Start() error
	Stop() error
	OnMessage(msgChan chan InMsg, queueName, exchangeName, exchangeType, key string) error
	PublishPersistentMessage(exchange, exchangeType, key string, data interface{}, options *MessageOptions) error
}

type InMsg struct {
	Exchange      string
	RoutingKey    string
	ReplyTo       string
	CorrelationID string
	Headers       map[string]interface{}
	Body          []byte
}

// MessageOptions represents the message publishing options
type MessageOptions struct {
	Gateway       string
	CorrelationID string
	Expiration    string
}

type AMQPHandler struct {
	conn              connection
	mu                sync.Mutex
	declaredExchanges map[string]struct{}
	startBackOff      func() backoff.BackOff
	log               *logrus.Entry
}

func NewAMQPHandler(conn connection, log *logrus.Entry) *AMQPHandler {
	return &AMQPHandler{
		conn:              conn,
		declaredExchanges: map[string]struct{}{},
		startBackOff:      defaultStartBackOff,
		log:               log,
	}
}

// the gateway must not stay off the radio schedule waiting for the broker
func defaultStartBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	return b
}

func (a *AMQPHandler) Start() error {
	if err := backoff.Retry(a.connect, a.startBackOff()); err != nil {
		return errors.Wrap(err, "connect to broker")
	}
	go a.notifyWhenClosed()
	return nil
}

func (a *AMQPHandler) Stop() error {
	return a.conn.close()
}

func (a *AMQPHandler) OnMessage(msgChan chan InMsg, queueName, exchangeName, exchangeType, key string) error {
	if err := a.declare(exchangeName, exchangeType); err != nil {
		return err
	}
	if err := a.conn.bindQueue(queueName, exchangeName, key); err != nil {
		return errors.Wrapf(err, "bind %s to %s", queueName, key)
	}
	deliveries, err := a.conn.consume(queueName)
	if err != nil {
		return errors.Wrapf(err, "consume %s", queueName)
	}

	go convertDeliveryToInMsg(deliveries, msgChan)
	return nil
}

func (a *AMQPHandler) PublishPersistentMessage(exchange, exchangeType, key string, data interface{}, options *MessageOptions) error {
	if err := a.declare(exchange, exchangeType); err != nil {
		return err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if options != nil {
		msg.Headers = amqp.Table{"Gateway": options.Gateway}
		msg.CorrelationId = options.CorrelationID
		msg.Expiration = options.Expiration
	}
	return errors.Wrapf(a.conn.publish(exchange, key, msg), "publish %s", key)
}

// declare runs once per exchange and connection.
func (a *AMQPHandler) declare(exchange, exchangeType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.declaredExchanges[exchange]; ok {
		return nil
	}
	if err := a.conn.declareExchange(exchange, exchangeType); err != nil {
		return errors.Wrapf(err, "declare %s", exchange)
	}
	a.declaredExchanges[exchange] = struct{}{}
	return nil
}

func (a *AMQPHandler) connect() error {
	if err := a.conn.dial(); err != nil {
		a.log.Warnf("broker unreachable: %v", err)
		return err
	}
	return a.conn.openChannel()
}

func (a *AMQPHandler) notifyWhenClosed() {
	errReason := <-a.conn.notifyClose(make(chan *amqp.Error))
	if errReason == nil {
		return
	}
	a.log.Warnf("broker connection closed: %v", errReason)

	//randomized interval = RetryInterval * (random value in range [1 - RandomizationFactor, 1 + RandomizationFactor])
	reconnectionBackOff := backoff.NewExponentialBackOff()
	reconnectionBackOff.InitialInterval = 30 * time.Second
	reconnectionBackOff.MaxInterval = 5 * time.Minute
	reconnectionBackOff.Multiplier = 1.7
	reconnectionBackOff.MaxElapsedTime = 0

	a.mu.Lock()
	a.declaredExchanges = map[string]struct{}{}
	a.mu.Unlock()

	if err := backoff.Retry(a.connect, reconnectionBackOff); err != nil {
		return
	}
	a.log.Info("reconnected to broker")
	go a.notifyWhenClosed()
}

func convertDeliveryToInMsg(deliveries <-chan amqp.Delivery, outMsg chan InMsg) {
	for d := range deliveries {
		outMsg <- InMsg{d.Exchange, d.RoutingKey, d.ReplyTo, d.CorrelationId, d.Headers, d.Body}
	}
}
