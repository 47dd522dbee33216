package api

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle solver keeps its limiter
const visitorTTL = 3 * time.Minute

// visitor tracks the rate limiter and last seen time for a solver
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SolverRateLimiter bounds solution submissions per solver address
type SolverRateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	rps         rate.Limit
	burst       int
	now         func() time.Time
	lastCleanup time.Time
}

// NewSolverRateLimiter allows rps sustained submissions per solver with the given burst
func NewSolverRateLimiter(rps float64, burst int) *SolverRateLimiter {
	return &SolverRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether the solver may submit now
func (rl *SolverRateLimiter) Allow(solver string) bool {
	key := strings.ToLower(strings.TrimSpace(solver))

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastCleanup = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
