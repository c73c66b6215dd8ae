package protocol

import (
	"context"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingReply
	StateRetransmitting
	StateDone
	StateFailed
)

func (s State) String() string {
	return [...]string{"idle", "sending", "awaiting reply", "retransmitting", "done", "failed"}[s]
}

// Link runs request/response exchanges with one peer over a half-duplex
// radio. Each exchange spends from a time budget set by the caller and fails
// once it is gone.
type Link struct {
	radio   radio.Radio
	address entities.Address
	out     *Window
	in      *Window
	budget  time.Duration
	guard   time.Duration
	state   State
	rx      [MaxMessageSize]byte
	tx      [MaxMessageSize]byte
	log     *logrus.Entry
}

func NewLink(r radio.Radio, address entities.Address, guard time.Duration, log *logrus.Entry) *Link {
	return &Link{
		radio:   r,
		address: address,
		out:     NewWindow(),
		in:      NewWindow(),
		guard:   guard,
		log:     log,
	}
}

func (l *Link) Address() entities.Address { return l.address }

// SetAddress changes the exchange address stamped on outgoing frames and
// used to filter incoming ones.
func (l *Link) SetAddress(address entities.Address) { l.address = address }

func (l *Link) Budget() time.Duration { return l.budget }

// SetBudget starts a new exchange with budget to spend.
func (l *Link) SetBudget(budget time.Duration) {
	l.budget = budget
	l.state = StateIdle
}

func (l *Link) State() State { return l.state }

func (l *Link) Outgoing() *Window { return l.out }

func (l *Link) Incoming() *Window { return l.in }

// Push queues body for the next send.
func (l *Link) Push(body Body) (int, error) {
	return l.out.Push(NewMessage(l.address, body))
}

// Reset drops everything queued or received.
func (l *Link) Reset() {
	l.out.Clear()
	l.in.Clear()
	l.state = StateIdle
}

// Send transmits every unacknowledged outgoing slot in seq order.
func (l *Link) Send(ctx context.Context) error {
	l.state = StateSending
	last := l.out.Len() - 1
	for i := 0; i < WindowCapacity; i++ {
		if !l.out.Has(i) || l.out.Acked(i) {
			continue
		}
		frame := l.out.buf[i][:l.out.sizes[i]]
		stamp(frame, uint8(i), i == last, l.address)
		if err := l.transmit(ctx, frame); err != nil {
			return l.fail(err)
		}
	}
	return nil
}

// Receive flushes pending outgoing slots, then listens until a complete
// generation of the expected type has arrived. Silence makes it repeat what
// the peer has not acknowledged yet.
func (l *Link) Receive(ctx context.Context, expectedSize int, expected MessageType) ([]Message, error) {
	l.in.Clear()
	if err := l.Send(ctx); err != nil {
		return nil, err
	}
	for {
		timedOut, err := l.listen(ctx, expectedSize)
		if err != nil {
			return nil, l.fail(err)
		}
		if timedOut {
			l.state = StateRetransmitting
			if err := l.repeat(ctx); err != nil {
				return nil, err
			}
			continue
		}
		frame, h, ok := l.read()
		if !ok {
			continue
		}
		if h.Type == TypeAck {
			if l.merge(frame) && expected == TypeAck {
				l.state = StateDone
				return nil, nil
			}
			if err := l.Send(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if expected != TypeAny && h.Type != expected {
			if l.out.Pending() {
				l.log.Debugf("peer %s still sends %s, repeating", h.Address, h.Type)
				if err := l.Send(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, l.fail(errors.Wrapf(ErrUnexpectedType, "got %s, want %s", h.Type, expected))
		}
		if _, err := Decode(frame, h.Type); err != nil {
			l.log.Debugf("discarding frame: %v", err)
			continue
		}
		if err := l.in.Store(h.Seq, frame); err != nil {
			l.log.Debugf("discarding frame: %v", err)
			continue
		}
		if l.in.Complete() {
			l.out.Clear()
			l.state = StateDone
			return l.in.Messages(TypeAny)
		}
	}
}

// Close waits until the peer acknowledges everything sent.
func (l *Link) Close(ctx context.Context) error {
	_, err := l.Receive(ctx, AckSize, TypeAck)
	return err
}

// Acknowledge reports the received generation to the peer and keeps
// answering its repeats until it falls silent or the budget runs out.
func (l *Link) Acknowledge(ctx context.Context) error {
	if err := l.sendAcks(ctx); err != nil {
		return l.fail(err)
	}
	for {
		timedOut, err := l.listen(ctx, MaxMessageSize)
		if err != nil || timedOut {
			break
		}
		_, h, ok := l.read()
		if !ok || h.Type == TypeAck {
			continue
		}
		if err := l.sendAcks(ctx); err != nil {
			break
		}
	}
	l.state = StateDone
	return nil
}

func (l *Link) listen(ctx context.Context, expectedSize int) (bool, error) {
	if err := l.check(ctx); err != nil {
		return false, err
	}
	timeout := min(l.guard+2*l.radio.TimeOnAir(expectedSize), l.budget)
	l.state = StateAwaitingReply
	if err := l.radio.StartReceive(timeout); err != nil {
		return false, errors.Wrapf(ErrRadio, "receive: %v", err)
	}
	timedOut, elapsed := l.radio.WaitForCompletion()
	if err := l.spend(elapsed); err != nil {
		return false, err
	}
	return timedOut, nil
}

func (l *Link) repeat(ctx context.Context) error {
	if l.out.Pending() {
		return l.Send(ctx)
	}
	if !l.in.Empty() {
		if err := l.sendAcks(ctx); err != nil {
			return l.fail(err)
		}
	}
	return nil
}

func (l *Link) read() ([]byte, Header, bool) {
	n := l.radio.PacketLength()
	if n < HeaderSize || n > MaxMessageSize {
		l.log.Debugf("discarding %d byte packet", n)
		return nil, Header{}, false
	}
	frame := l.rx[:n]
	if err := l.radio.ReadReceived(frame); err != nil {
		l.log.Debugf("read failed: %v", err)
		return nil, Header{}, false
	}
	h, err := DecodeHeader(frame)
	if err != nil {
		l.log.Debugf("discarding frame: %v", err)
		return nil, Header{}, false
	}
	if !l.address.Accepts(h.Address) {
		l.log.Debugf("discarding %s from %s", h.Type, h.Address)
		return nil, Header{}, false
	}
	l.log.Debugf("received %s seq %d last %t from %s", h.Type, h.Seq, h.Last, h.Address)
	return frame, h, true
}

// merge folds an ACK into the outgoing acknowledgement bits and reports
// whether nothing is left unacknowledged.
func (l *Link) merge(frame []byte) bool {
	m, err := Decode(frame, TypeAck)
	if err != nil {
		l.log.Debugf("discarding ack: %v", err)
		return false
	}
	l.out.Acks().InPlaceUnion(m.Body.(Ack).Bitset())
	return !l.out.Pending()
}

func (l *Link) sendAcks(ctx context.Context) error {
	m := NewMessage(l.address, AckFromBitset(l.in.Acks()))
	m.Last = true
	n, err := EncodeTo(l.tx[:], m)
	if err != nil {
		return err
	}
	return l.transmit(ctx, l.tx[:n])
}

func (l *Link) transmit(ctx context.Context, frame []byte) error {
	if err := l.check(ctx); err != nil {
		return err
	}
	if err := l.radio.Transmit(frame, 2*l.radio.TimeOnAir(len(frame))); err != nil {
		return errors.Wrapf(ErrRadio, "transmit: %v", err)
	}
	timedOut, elapsed := l.radio.WaitForCompletion()
	if err := l.spend(elapsed); err != nil {
		return err
	}
	if timedOut {
		return ErrTransmitTimeout
	}
	l.log.Debugf("sent %s seq %d to %s", MessageType(frame[0]&typeMask), frame[0]>>seqShift, l.address)
	return nil
}

func (l *Link) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrAborted, err.Error())
	}
	if l.budget <= 0 {
		return ErrBudgetExhausted
	}
	return nil
}

func (l *Link) spend(elapsed time.Duration) error {
	if elapsed >= l.budget {
		l.budget = 0
		return ErrBudgetExhausted
	}
	l.budget -= elapsed
	return nil
}

func (l *Link) fail(err error) error {
	l.state = StateFailed
	return err
}
