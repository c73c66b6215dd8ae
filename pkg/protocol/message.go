package protocol

import (
	"encoding/binary"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/pkg/errors"
)

// Header is the first HeaderSize bytes of every frame: type, last and seq
// packed in one byte followed by the little endian exchange address.
type Header struct {
	Type    MessageType
	Last    bool
	Seq     uint8
	Address entities.Address
}

// Body is the type specific payload that follows the header.
type Body interface {
	Type() MessageType
	size() int
	put(b []byte)
}

type Message struct {
	Header
	Body Body
}

// Size is the encoded size of m.
func (m Message) Size() int {
	return HeaderSize + m.Body.size()
}

type Hello struct{}

func (Hello) Type() MessageType { return TypeHello }
func (Hello) size() int         { return 0 }
func (Hello) put([]byte)        {}

// Config carries the complete schedule of a node.
type Config entities.TimeConfig

func (Config) Type() MessageType { return TypeConfig }
func (Config) size() int         { return ConfigSize - HeaderSize }

func (c Config) put(b []byte) {
	fields := [...]uint32{c.CurTime, c.SampleInterval, c.SampleRounding, c.SampleOffset, c.CommInterval, c.CommTime, c.MaxMessages}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
}

func decodeConfig(b []byte) Config {
	u := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	return Config{
		CurTime:        u(0),
		SampleInterval: u(1),
		SampleRounding: u(2),
		SampleOffset:   u(3),
		CommInterval:   u(4),
		CommTime:       u(5),
		MaxMessages:    u(6),
	}
}

// Data carries the readings sampled at Time.
type Data struct {
	Time   uint32
	Values []entities.SensorValue
}

func (Data) Type() MessageType { return TypeData }
func (d Data) size() int       { return DataSize(len(d.Values)) - HeaderSize }

func (d Data) put(b []byte) {
	binary.LittleEndian.PutUint32(b, d.Time)
	b[4] = uint8(len(d.Values))
	for i, v := range d.Values {
		o := dataFixedSize + i*sensorValueSize
		b[o] = v.TypeTag
		b[o+1] = v.InstanceTag
		binary.LittleEndian.PutUint32(b[o+2:], math.Float32bits(v.Value))
	}
}

func decodeData(b []byte) (Data, error) {
	if len(b) < dataFixedSize {
		return Data{}, ErrTruncated
	}
	d := Data{Time: binary.LittleEndian.Uint32(b)}
	n := int(b[4])
	if n > MaxDataValues {
		return Data{}, ErrTooManyValues
	}
	if len(b) != dataFixedSize+n*sensorValueSize {
		return Data{}, errors.Wrapf(ErrTruncated, "%d values in %d bytes", n, len(b))
	}
	if n > 0 {
		d.Values = make([]entities.SensorValue, n)
	}
	for i := range d.Values {
		o := dataFixedSize + i*sensorValueSize
		d.Values[i] = entities.SensorValue{
			TypeTag:     b[o],
			InstanceTag: b[o+1],
			Value:       math.Float32frombits(binary.LittleEndian.Uint32(b[o+2:])),
		}
	}
	return d, nil
}

// Ack acknowledges the slots of a window generation, bit i for seq i.
type Ack struct {
	Bits uint32
}

func (Ack) Type() MessageType { return TypeAck }
func (Ack) size() int         { return AckSize - HeaderSize }

func (a Ack) put(b []byte) {
	binary.LittleEndian.PutUint32(b, a.Bits)
}

func AckFromBitset(set *bitset.BitSet) Ack {
	var bits uint32
	for i, ok := set.NextSet(0); ok && i < AckWidth; i, ok = set.NextSet(i + 1) {
		bits |= 1 << i
	}
	return Ack{Bits: bits}
}

func (a Ack) Bitset() *bitset.BitSet {
	set := bitset.New(AckWidth)
	for i := uint(0); i < AckWidth; i++ {
		if a.Bits&(1<<i) != 0 {
			set.Set(i)
		}
	}
	return set
}

// Encode allocates a frame for m.
func Encode(m Message) ([]byte, error) {
	if m.Body == nil {
		return nil, ErrInvalidType
	}
	buf := make([]byte, m.Size())
	n, err := EncodeTo(buf, m)
	return buf[:n], err
}

// EncodeTo writes m into buf and returns the encoded size. The header type
// always follows the body.
func EncodeTo(buf []byte, m Message) (int, error) {
	if m.Body == nil {
		return 0, ErrInvalidType
	}
	if d, ok := m.Body.(Data); ok && len(d.Values) > MaxDataValues {
		return 0, errors.Wrapf(ErrTooManyValues, "%d values", len(d.Values))
	}
	size := m.Size()
	if size > MaxMessageSize || size > len(buf) {
		return 0, errors.Wrapf(ErrMessageTooLarge, "%d bytes", size)
	}
	if m.Seq > maxSeq {
		return 0, errors.Wrapf(ErrInvalidSeq, "seq %d", m.Seq)
	}
	h := m.Header
	h.Type = m.Body.Type()
	putHeader(buf, h)
	m.Body.put(buf[HeaderSize:size])
	return size, nil
}

func putHeader(b []byte, h Header) {
	b[0] = uint8(h.Type)&typeMask | h.Seq<<seqShift
	if h.Last {
		b[0] |= lastBit
	}
	binary.LittleEndian.PutUint16(b[1:], h.Address.Gateway)
	binary.LittleEndian.PutUint16(b[3:], h.Address.Node)
}

// stamp rewrites the exchange fields of an encoded frame in place.
func stamp(b []byte, seq uint8, last bool, address entities.Address) {
	h := Header{Type: MessageType(b[0] & typeMask), Seq: seq, Last: last, Address: address}
	putHeader(b, h)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	h := Header{
		Type: MessageType(b[0] & typeMask),
		Last: b[0]&lastBit != 0,
		Seq:  b[0] >> seqShift,
		Address: entities.Address{
			Gateway: binary.LittleEndian.Uint16(b[1:]),
			Node:    binary.LittleEndian.Uint16(b[3:]),
		},
	}
	if !h.Type.valid() {
		return Header{}, errors.Wrapf(ErrInvalidType, "type %d", h.Type)
	}
	return h, nil
}

// Decode parses b. Unless expected is TypeAny the header type must match it.
func Decode(b []byte, expected MessageType) (Message, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Message{}, err
	}
	if expected != TypeAny && h.Type != expected {
		return Message{}, errors.Wrapf(ErrUnexpectedType, "got %s, want %s", h.Type, expected)
	}
	if len(b) > MaxMessageSize {
		return Message{}, ErrMessageTooLarge
	}
	body := b[HeaderSize:]
	m := Message{Header: h}
	switch h.Type {
	case TypeHello:
		if len(body) != 0 {
			return Message{}, errors.Wrapf(ErrTruncated, "hello of %d bytes", len(b))
		}
		m.Body = Hello{}
	case TypeConfig:
		if len(body) != ConfigSize-HeaderSize {
			return Message{}, errors.Wrapf(ErrTruncated, "config of %d bytes", len(b))
		}
		m.Body = decodeConfig(body)
	case TypeData:
		d, err := decodeData(body)
		if err != nil {
			return Message{}, err
		}
		m.Body = d
	case TypeAck:
		if len(body) != AckSize-HeaderSize {
			return Message{}, errors.Wrapf(ErrTruncated, "ack of %d bytes", len(b))
		}
		m.Body = Ack{Bits: binary.LittleEndian.Uint32(body)}
	}
	return m, nil
}

func NewMessage(address entities.Address, body Body) Message {
	return Message{Header: Header{Type: body.Type(), Address: address}, Body: body}
}
