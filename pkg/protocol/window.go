package protocol

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

// Window holds one generation of up to WindowCapacity encoded frames and
// their acknowledgement bits. Slot i always carries seq i.
type Window struct {
	buf   [WindowCapacity][MaxMessageSize]byte
	sizes [WindowCapacity]int
	next  int
	acks  *bitset.BitSet
}

func NewWindow() *Window {
	return &Window{acks: bitset.New(AckWidth)}
}

// Push encodes m into the next free slot and returns its index.
func (w *Window) Push(m Message) (int, error) {
	for w.next < WindowCapacity && w.sizes[w.next] != 0 {
		w.next++
	}
	if w.next >= WindowCapacity {
		return 0, ErrWindowFull
	}
	i := w.next
	m.Seq = uint8(i)
	n, err := EncodeTo(w.buf[i][:], m)
	if err != nil {
		return 0, errors.Wrap(err, "push")
	}
	w.sizes[i] = n
	w.next++
	return i, nil
}

// Store places a received frame at its advertised slot and acknowledges it.
func (w *Window) Store(seq uint8, frame []byte) error {
	if int(seq) >= WindowCapacity {
		return errors.Wrapf(ErrInvalidSeq, "seq %d", seq)
	}
	if len(frame) == 0 || len(frame) > MaxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", len(frame))
	}
	w.sizes[seq] = copy(w.buf[seq][:], frame)
	w.acks.Set(uint(seq))
	return nil
}

func (w *Window) Bytes(i int) []byte {
	return w.buf[i][:w.sizes[i]]
}

func (w *Window) Size(i int) int {
	return w.sizes[i]
}

func (w *Window) Has(i int) bool {
	return i >= 0 && i < WindowCapacity && w.sizes[i] != 0
}

// Acks exposes the acknowledgement bits of the generation.
func (w *Window) Acks() *bitset.BitSet {
	return w.acks
}

func (w *Window) Acked(i int) bool {
	return w.acks.Test(uint(i))
}

// Clear starts a new generation.
func (w *Window) Clear() {
	w.next = 0
	w.sizes = [WindowCapacity]int{}
	w.acks.ClearAll()
}

// Len is one past the highest occupied slot.
func (w *Window) Len() int {
	for i := WindowCapacity - 1; i >= 0; i-- {
		if w.sizes[i] != 0 {
			return i + 1
		}
	}
	return 0
}

func (w *Window) Empty() bool {
	return w.Len() == 0
}

// Pending reports whether an occupied slot is still unacknowledged.
func (w *Window) Pending() bool {
	for i := 0; i < WindowCapacity; i++ {
		if w.Has(i) && !w.Acked(i) {
			return true
		}
	}
	return false
}

// Complete reports whether the frame flagged last has arrived and every
// slot below it is filled.
func (w *Window) Complete() bool {
	n := w.Len()
	if n == 0 || w.buf[n-1][0]&lastBit == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if w.sizes[i] == 0 {
			return false
		}
	}
	return true
}

// Messages decodes the occupied slots in seq order.
func (w *Window) Messages(expected MessageType) ([]Message, error) {
	out := make([]Message, 0, w.Len())
	for i := 0; i < WindowCapacity; i++ {
		if !w.Has(i) {
			continue
		}
		m, err := Decode(w.Bytes(i), expected)
		if err != nil {
			return nil, errors.Wrapf(err, "slot %d", i)
		}
		out = append(out, m)
	}
	return out, nil
}
