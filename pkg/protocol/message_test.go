package protocol

import (
	"testing"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = entities.Address{Gateway: 0x0102, Node: 0x00A7}

func TestGivenEachMessageTypeWhenRoundTripThenDecodedEqualsEncoded(t *testing.T) {
	values := make([]entities.SensorValue, MaxDataValues)
	for i := range values {
		values[i] = entities.SensorValue{TypeTag: uint8(i), InstanceTag: uint8(i % 3), Value: float32(i) * 1.5}
	}
	cases := []struct {
		name string
		body Body
		size int
	}{
		{"hello", Hello{}, HeaderSize},
		{"config", Config{CurTime: 1, SampleInterval: 1200, SampleRounding: 1200, SampleOffset: 7, CommInterval: 3600, CommTime: 99999, MaxMessages: 5}, ConfigSize},
		{"empty data", Data{Time: 42}, DataSize(0)},
		{"data", Data{Time: 1700000000, Values: []entities.SensorValue{{TypeTag: 1, InstanceTag: 2, Value: -21.25}}}, DataSize(1)},
		{"full data", Data{Time: 5, Values: values}, DataSize(MaxDataValues)},
		{"ack", Ack{Bits: 0b1011_0001}, AckSize},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := NewMessage(testAddress, c.body)
			m.Seq = 6
			m.Last = true
			frame, err := Encode(m)
			require.NoError(t, err)
			assert.Len(t, frame, c.size)
			assert.LessOrEqual(t, len(frame), MaxMessageSize)

			decoded, err := Decode(frame, c.body.Type())
			require.NoError(t, err)
			assert.Equal(t, m, decoded)
		})
	}
}

func TestGivenHeaderFieldsWhenEncodedThenBitsArePacked(t *testing.T) {
	m := NewMessage(entities.Address{Gateway: 0xBEEF, Node: 0x1234}, Ack{})
	m.Seq = 5
	m.Last = true
	frame, err := Encode(m)
	require.NoError(t, err)

	assert.Equal(t, byte(0x03|0x08|0x50), frame[0])
	assert.Equal(t, []byte{0xEF, 0xBE, 0x34, 0x12}, frame[1:5])
}

func TestGivenConcreteExpectedTypeWhenTypeDiffersThenDecodeFails(t *testing.T) {
	frame, err := Encode(NewMessage(testAddress, Hello{}))
	require.NoError(t, err)

	_, err = Decode(frame, TypeConfig)
	assert.ErrorIs(t, err, ErrUnexpectedType)

	m, err := Decode(frame, TypeAny)
	require.NoError(t, err)
	assert.Equal(t, TypeHello, m.Type)
}

func TestGivenShortFramesWhenDecodedThenTruncated(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x00}, TypeAny)
	assert.ErrorIs(t, err, ErrTruncated)

	frame, err := Encode(NewMessage(testAddress, Config{CommInterval: 1}))
	require.NoError(t, err)
	_, err = Decode(frame[:len(frame)-1], TypeConfig)
	assert.ErrorIs(t, err, ErrTruncated)

	frame, err = Encode(NewMessage(testAddress, Data{Values: make([]entities.SensorValue, 2)}))
	require.NoError(t, err)
	_, err = Decode(frame[:len(frame)-3], TypeData)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestGivenHelloWithTrailingBytesWhenDecodedThenRejected(t *testing.T) {
	frame, err := Encode(NewMessage(testAddress, Hello{}))
	require.NoError(t, err)

	_, err = Decode(append(frame, 0x00), TypeHello)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestGivenReservedTypeTagWhenDecodedThenInvalid(t *testing.T) {
	_, err := DecodeHeader([]byte{0x05, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestGivenTooManyValuesWhenEncodedThenRejected(t *testing.T) {
	assert.Equal(t, 40, MaxDataValues)
	_, err := Encode(NewMessage(testAddress, Data{Values: make([]entities.SensorValue, MaxDataValues+1)}))
	assert.ErrorIs(t, err, ErrTooManyValues)
}

func TestGivenAckBitsWhenConvertedToBitsetThenSameSlots(t *testing.T) {
	a := Ack{Bits: 1<<0 | 1<<2 | 1<<7}
	set := a.Bitset()
	assert.True(t, set.Test(0))
	assert.False(t, set.Test(1))
	assert.True(t, set.Test(2))
	assert.True(t, set.Test(7))
	assert.Equal(t, uint(3), set.Count())
	assert.Equal(t, a, AckFromBitset(set))
}
