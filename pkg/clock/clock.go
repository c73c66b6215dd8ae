package clock

import (
	"context"
	"time"
)

// Clock gives the scheduler its notion of now and lets it sleep until a
// scheduled instant.
type Clock interface {
	Now() time.Time
	SleepUntil(ctx context.Context, t time.Time) error
}

type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Unix is the wire representation of t.
func Unix(t time.Time) uint32 {
	return uint32(t.Unix())
}

func FromUnix(s uint32) time.Time {
	return time.Unix(int64(s), 0)
}

// Manual is a clock that only moves when told to. Sleeping jumps to the
// target instant.
type Manual struct {
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	return m.now
}

func (m *Manual) SleepUntil(ctx context.Context, t time.Time) error {
	if t.After(m.now) {
		m.now = t
	}
	return ctx.Err()
}

func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

func (m *Manual) Set(t time.Time) {
	m.now = t
}
