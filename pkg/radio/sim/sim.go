// Package sim is an in-memory radio medium for host simulation and tests.
package sim

import (
	"sync"
	"time"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
)

// DropFunc decides whether a frame sent by the named radio is lost.
type DropFunc func(from string, frame []byte) bool

// Ether broadcasts every transmitted frame to all other attached radios.
type Ether struct {
	mu     sync.Mutex
	radios []*Radio
	drop   DropFunc
}

func NewEther() *Ether {
	return &Ether{}
}

func (e *Ether) SetDropFunc(drop DropFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drop = drop
}

func (e *Ether) Attach(name string, airtime radio.Airtime) *Radio {
	r := &Radio{name: name, ether: e, airtime: airtime}
	e.mu.Lock()
	e.radios = append(e.radios, r)
	e.mu.Unlock()
	return r
}

func (e *Ether) broadcast(from *Radio, frame []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drop != nil && e.drop(from.name, frame) {
		return
	}
	for _, r := range e.radios {
		if r != from {
			r.deliver(frame)
		}
	}
}

type mode int

const (
	idle mode = iota
	transmitting
	receiving
)

// Radio implements radio.Radio on an Ether. Frames reaching a radio are
// queued until it listens.
type Radio struct {
	name    string
	ether   *Ether
	airtime radio.Airtime

	mu      sync.Mutex
	inbox   ringBuffer
	sent    ringBuffer
	mode    mode
	txSize  int
	timeout time.Duration
	packet  []byte
}

func (r *Radio) Transmit(frame []byte, timeout time.Duration) error {
	r.mu.Lock()
	if r.mode != idle {
		r.mu.Unlock()
		return radio.ErrBusy
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	r.mode = transmitting
	r.txSize = len(out)
	r.sent.push(out)
	r.mu.Unlock()

	r.ether.broadcast(r, out)
	return nil
}

func (r *Radio) StartReceive(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != idle {
		return radio.ErrBusy
	}
	r.mode = receiving
	r.timeout = timeout
	r.packet = nil
	return nil
}

func (r *Radio) WaitForCompletion() (bool, time.Duration) {
	r.mu.Lock()
	m, timeout := r.mode, r.timeout
	r.mode = idle
	r.mu.Unlock()

	switch m {
	case transmitting:
		return false, r.airtime.TimeOnAir(r.txSize)
	case receiving:
		start := time.Now()
		deadline := start.Add(timeout)
		for {
			r.mu.Lock()
			frame, ok := r.inbox.pop()
			if ok {
				r.packet = frame
			}
			r.mu.Unlock()
			if ok {
				return false, max(time.Since(start), r.airtime.TimeOnAir(len(frame)))
			}
			if time.Now().After(deadline) {
				return true, timeout
			}
			time.Sleep(time.Millisecond)
		}
	}
	return true, 0
}

func (r *Radio) PacketLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packet)
}

func (r *Radio) ReadReceived(buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.packet == nil {
		return radio.ErrNoPacket
	}
	if len(buf) < len(r.packet) {
		return radio.ErrBufferShort
	}
	copy(buf, r.packet)
	return nil
}

func (r *Radio) TimeOnAir(size int) time.Duration {
	return r.airtime.TimeOnAir(size)
}

// Sent returns copies of every frame this radio transmitted, oldest first.
func (r *Radio) Sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent.snapshot()
}

// Inject queues frame as if it had been received over the air.
func (r *Radio) Inject(frame []byte) {
	out := make([]byte, len(frame))
	copy(out, frame)
	r.deliver(out)
}

func (r *Radio) deliver(frame []byte) {
	r.mu.Lock()
	r.inbox.push(frame)
	r.mu.Unlock()
}

const ringCapacity = 64

type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int
	count      int
}

// push overwrites the oldest frame when full.
func (rb *ringBuffer) push(frame []byte) {
	if rb.count == ringCapacity {
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) pop() ([]byte, bool) {
	if rb.count == 0 {
		return nil, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = nil
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}

func (rb *ringBuffer) snapshot() [][]byte {
	out := make([][]byte, 0, rb.count)
	for c, i := 0, rb.head; c < rb.count; c, i = c+1, (i+1)%ringCapacity {
		cp := make([]byte, len(rb.data[i]))
		copy(cp, rb.data[i])
		out = append(out, cp)
	}
	return out
}
