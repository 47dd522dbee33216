package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSolverRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewSolverRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("0xAbC"))
	assert.True(t, rl.Allow("0xabc"))
	assert.False(t, rl.Allow("0xABC"), "addresses share a budget regardless of case")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("0xabc"))
}

func TestSolverRateLimiterForgetsIdleSolvers(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewSolverRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("0xabc")
	rl.Allow("0xdef")
	assert.Len(t, rl.visitors, 2)

	now = now.Add(visitorTTL + 2*time.Minute)
	rl.Allow("0xdef")
	assert.Len(t, rl.visitors, 1)
}
