package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGivenPastInstantWhenSleepThenReturnsImmediately(t *testing.T) {
	start := time.Now()
	err := System{}.SleepUntil(context.Background(), start.Add(-time.Hour))

	assert.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGivenCancelledContextWhenSleepThenError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := System{}.SleepUntil(ctx, time.Now().Add(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGivenManualClockWhenSleepThenJumpsForwardOnly(t *testing.T) {
	m := NewManual(FromUnix(1000))

	assert.NoError(t, m.SleepUntil(context.Background(), FromUnix(1500)))
	assert.Equal(t, uint32(1500), Unix(m.Now()))

	assert.NoError(t, m.SleepUntil(context.Background(), FromUnix(1200)))
	assert.Equal(t, uint32(1500), Unix(m.Now()))

	m.Advance(10 * time.Second)
	assert.Equal(t, uint32(1510), Unix(m.Now()))
}
