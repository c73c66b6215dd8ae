// Package serial drives a LoRa transceiver behind a UART bridge. The bridge
// firmware executes one command at a time and answers with one event that
// echoes the command sequence number.
package serial

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"sync"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	goserial "go.bug.st/serial"
)

const (
	sync0 = 0x7E

	cmdTransmit = 0x01
	cmdReceive  = 0x02

	evtTxDone  = 0x81
	evtPacket  = 0x82
	evtTimeout = 0x83
	evtFault   = 0x8F

	// sync, code, seq and payload length
	headerSize = 5
	maxPayload = 4 + 255
	// extra time granted to the bridge beyond the radio timeout
	responseMargin = time.Second
)

var (
	ErrChecksum = errors.New("bridge frame checksum mismatch")
	ErrFault    = errors.New("bridge reported a fault")
	ErrNoReply  = errors.New("bridge did not answer")
)

// Port is the part of a serial port the modem needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

type Modem struct {
	mu      sync.Mutex
	port    Port
	airtime radio.Airtime
	pending byte
	seq     byte
	timeout time.Duration
	packet  []byte
	log     *logrus.Entry
}

// Open connects to the bridge on cfg.Port.
func Open(cfg entities.RadioConfig, airtime radio.Airtime, log *logrus.Entry) (*Modem, error) {
	port, err := goserial.Open(cfg.Port, &goserial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Port)
	}
	return NewModem(port, airtime, log), nil
}

func NewModem(port Port, airtime radio.Airtime, log *logrus.Entry) *Modem {
	return &Modem{port: port, airtime: airtime, log: log}
}

func (m *Modem) Close() error {
	return m.port.Close()
}

func (m *Modem) Transmit(frame []byte, timeout time.Duration) error {
	payload := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(payload, uint32(timeout.Milliseconds()))
	copy(payload[4:], frame)
	return m.command(cmdTransmit, payload, timeout)
}

func (m *Modem) StartReceive(timeout time.Duration) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(timeout.Milliseconds()))
	return m.command(cmdReceive, payload, timeout)
}

func (m *Modem) command(cmd byte, payload []byte, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != 0 {
		return radio.ErrBusy
	}
	m.seq++
	if _, err := m.port.Write(encodeFrame(cmd, m.seq, payload)); err != nil {
		return errors.Wrap(err, "write bridge command")
	}
	m.pending = cmd
	m.timeout = timeout
	m.packet = nil
	return nil
}

// WaitForCompletion reads the bridge event answering the pending command.
// Events left over from earlier commands are skipped. A silent or broken
// bridge counts as a timeout.
func (m *Modem) WaitForCompletion() (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == 0 {
		return true, 0
	}
	cmd, timeout := m.pending, m.timeout
	m.pending = 0
	if err := m.port.SetReadTimeout(timeout + responseMargin); err != nil {
		m.log.Errorf("set read timeout: %v", err)
		return true, timeout
	}
	var (
		evt, seq byte
		payload  []byte
		err      error
	)
	for {
		evt, seq, payload, err = readFrame(m.port)
		if err != nil {
			m.log.Warnf("bridge: %v", err)
			return true, timeout
		}
		if seq == m.seq {
			break
		}
		m.log.Debugf("stale bridge event %#x of command %d", evt, seq)
	}
	if len(payload) < 4 {
		m.log.Warnf("bridge event %#x without elapsed time", evt)
		return true, timeout
	}
	elapsed := time.Duration(binary.LittleEndian.Uint32(payload)) * time.Millisecond
	switch {
	case evt == evtTxDone && cmd == cmdTransmit:
		return false, elapsed
	case evt == evtPacket && cmd == cmdReceive:
		m.packet = append([]byte(nil), payload[4:]...)
		return false, elapsed
	case evt == evtTimeout && (cmd == cmdTransmit || cmd == cmdReceive):
		return true, elapsed
	case evt == evtFault:
		m.log.Warn(ErrFault)
	default:
		m.log.Warnf("bridge event %#x does not answer command %#x", evt, cmd)
	}
	return true, elapsed
}

func (m *Modem) PacketLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packet)
}

func (m *Modem) ReadReceived(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.packet == nil {
		return radio.ErrNoPacket
	}
	if len(buf) < len(m.packet) {
		return radio.ErrBufferShort
	}
	copy(buf, m.packet)
	return nil
}

func (m *Modem) TimeOnAir(size int) time.Duration {
	return m.airtime.TimeOnAir(size)
}

// encodeFrame lays out sync | code | seq | len u16 | payload | crc32 over
// code..payload.
func encodeFrame(code, seq byte, payload []byte) []byte {
	b := make([]byte, headerSize+len(payload)+4)
	b[0] = sync0
	b[1] = code
	b[2] = seq
	binary.LittleEndian.PutUint16(b[3:], uint16(len(payload)))
	copy(b[headerSize:], payload)
	binary.LittleEndian.PutUint32(b[headerSize+len(payload):], crc32.ChecksumIEEE(b[1:headerSize+len(payload)]))
	return b
}

func readFrame(r io.Reader) (code, seq byte, payload []byte, err error) {
	var one [1]byte
	for {
		if err := readFull(r, one[:]); err != nil {
			return 0, 0, nil, err
		}
		if one[0] == sync0 {
			break
		}
	}
	var head [headerSize - 1]byte
	if err := readFull(r, head[:]); err != nil {
		return 0, 0, nil, err
	}
	n := int(binary.LittleEndian.Uint16(head[2:]))
	if n > maxPayload {
		return 0, 0, nil, errors.Errorf("bridge frame of %d bytes", n)
	}
	rest := make([]byte, n+4)
	if err := readFull(r, rest); err != nil {
		return 0, 0, nil, err
	}
	sum := crc32.NewIEEE()
	sum.Write(head[:])
	sum.Write(rest[:n])
	if sum.Sum32() != binary.LittleEndian.Uint32(rest[n:]) {
		return 0, 0, nil, ErrChecksum
	}
	return head[0], head[1], rest[:n], nil
}

// readFull treats a zero length read as the port read timeout.
func readFull(r io.Reader, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNoReply
		}
		off += n
	}
	return nil
}
