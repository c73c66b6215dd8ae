package radio

import (
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNoPacket     = errors.New("no packet received")
	ErrBufferShort  = errors.New("buffer shorter than packet")
	ErrNotListening = errors.New("radio is not receiving")
	ErrBusy         = errors.New("radio operation in progress")
)

// Radio is a half-duplex transceiver. Transmit and StartReceive only start an
// operation; WaitForCompletion blocks until it finishes or times out.
type Radio interface {
	Transmit(frame []byte, timeout time.Duration) error
	StartReceive(timeout time.Duration) error
	WaitForCompletion() (timedOut bool, elapsed time.Duration)
	// PacketLength is the size of the last received packet.
	PacketLength() int
	ReadReceived(buf []byte) error
	TimeOnAir(size int) time.Duration
}
