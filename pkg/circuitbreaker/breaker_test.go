package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(true, threshold, time.Minute, 5*time.Minute, nil)
	cb.SetClock(clock.now)
	return cb, clock
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb, _ := newTestBreaker(3)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	count, _, window, threshold := cb.GetState()
	assert.Equal(t, 3, count)
	assert.Equal(t, time.Minute, window)
	assert.Equal(t, 3, threshold)
	assert.False(t, cb.GetTripTime().IsZero())
}

func TestCircuitBreakerWindowExpires(t *testing.T) {
	cb, clock := newTestBreaker(2)

	assert.False(t, cb.RecordFailure())
	clock.advance(2 * time.Minute)
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerResetTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1)

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
	clock.advance(6 * time.Minute)
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerManualReset(t *testing.T) {
	cb, _ := newTestBreaker(1)

	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	cb.Reset()
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreakerSuccessClearsCount(t *testing.T) {
	cb, _ := newTestBreaker(2)

	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, nil)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
	assert.False(t, cb.IsEnabled())
}
