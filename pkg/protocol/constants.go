package protocol

// MessageType is the 3-bit type tag of a frame header.
type MessageType uint8

const (
	TypeHello  MessageType = 0
	TypeConfig MessageType = 1
	TypeData   MessageType = 2
	TypeAck    MessageType = 3
	TypeAny    MessageType = 7
)

const (
	MaxMessageSize  = 255
	HeaderSize      = 5
	ConfigSize      = HeaderSize + 7*4
	AckSize         = HeaderSize + 4
	dataFixedSize   = 4 + 1
	sensorValueSize = 1 + 1 + 4
	MaxDataValues   = (MaxMessageSize - HeaderSize - dataFixedSize) / sensorValueSize

	WindowCapacity = 8
	AckWidth       = 32

	typeMask = 0x07
	lastBit  = 0x08
	seqShift = 4
	maxSeq   = 0x0F
)

// window capacity must fit in both the ACK bitset and the seq field
const _ = uint(AckWidth-WindowCapacity) + uint(maxSeq+1-WindowCapacity)

func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeConfig:
		return "CONFIG"
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	case TypeAny:
		return "ANY"
	}
	return "UNKNOWN"
}

func (t MessageType) valid() bool {
	switch t {
	case TypeHello, TypeConfig, TypeData, TypeAck:
		return true
	}
	return false
}

// DataSize is the encoded size of a DATA message carrying n values.
func DataSize(n int) int {
	return HeaderSize + dataFixedSize + n*sensorValueSize
}
