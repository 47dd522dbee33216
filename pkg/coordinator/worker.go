package coordinator

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/circuitbreaker"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
)

// AutoCommitter commits the winning solution of newly created intents.
// Each queued intent is handled once: wait for the first solution, let the
// auction window run, then commit. Failures are logged and counted, the
// intent stays CREATED and can still be committed through the API.
type AutoCommitter struct {
	commitment *Commitment
	breaker    *circuitbreaker.CircuitBreaker
	window     time.Duration
	workers    int
	logger     logger.Logger

	pendingJobs chan string
	wg          sync.WaitGroup
}

// NewAutoCommitter creates a pool of workers draining a bounded queue. breaker may be nil.
func NewAutoCommitter(commitment *Commitment, breaker *circuitbreaker.CircuitBreaker, window time.Duration, workers int, log logger.Logger) *AutoCommitter {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if workers < 1 {
		workers = 1
	}
	return &AutoCommitter{
		commitment:  commitment,
		breaker:     breaker,
		window:      window,
		workers:     workers,
		logger:      log,
		pendingJobs: make(chan string, workers*100),
	}
}

// Start launches the workers, they stop when ctx is cancelled
func (a *AutoCommitter) Start(ctx context.Context) {
	a.logger.Info("Starting %d auto-commit workers (auction window %v)", a.workers, a.window)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func(id int) {
			defer a.wg.Done()
			a.worker(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have stopped
func (a *AutoCommitter) Wait() {
	a.wg.Wait()
}

// Enqueue queues an intent for commitment. It never blocks and returns
// false when the queue is full.
func (a *AutoCommitter) Enqueue(intentID string) bool {
	select {
	case a.pendingJobs <- intentID:
		metrics.PendingCommits.Inc()
		return true
	default:
		a.logger.Error("Auto-commit queue full, intent %s must be committed manually", intentID)
		metrics.AutoCommits.WithLabelValues("dropped").Inc()
		return false
	}
}

// worker processes intents from the job queue
func (a *AutoCommitter) worker(ctx context.Context, id int) {
	a.logger.Debug("Auto-commit worker %d started", id)
	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("Auto-commit worker %d shutting down", id)
			return
		case intentID := <-a.pendingJobs:
			metrics.PendingCommits.Dec()
			status := a.process(ctx, intentID)
			metrics.AutoCommits.WithLabelValues(status).Inc()
		}
	}
}

// process commits one intent and returns the outcome label
func (a *AutoCommitter) process(ctx context.Context, intentID string) string {
	start := time.Now()

	if _, err := a.commitment.WaitForSolutions(ctx, intentID); err != nil {
		a.logger.Notice("No solution for intent %s: %v", intentID, err)
		return "no_solution"
	}

	if a.window > 0 {
		timer := time.NewTimer(a.window)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "cancelled"
		case <-timer.C:
		}
	}

	if a.breaker != nil && a.breaker.IsEnabled() && a.breaker.IsOpen() {
		failureCount, lastFailure, _, _ := a.breaker.GetState()
		a.logger.Error("Circuit breaker open (last failure: %v, failure count: %d), skipping intent %s",
			lastFailure, failureCount, intentID)
		return "circuit_open"
	}

	intent, err := a.commitment.Commit(ctx, intentID)
	switch {
	case err == nil:
		chainID := strconv.Itoa(intent.ChainID)
		metrics.CommitProcessingTime.WithLabelValues(chainID).Observe(time.Since(start).Seconds())
		a.logger.InfoWithChain(intent.ChainID, "Auto-committed solution %s for intent %s", *intent.WinningSolutionID, intentID)
		return "success"
	case errors.Is(err, ledger.ErrStaleTransition), errors.Is(err, ledger.ErrInvalidState):
		a.logger.Debug("Intent %s already moved on, nothing to commit: %v", intentID, err)
		return "skipped"
	case errors.Is(err, chain.ErrChain):
		a.logger.Error("Chain rejected commitment of intent %s: %v", intentID, err)
		return "chain_error"
	}
	a.logger.Error("Failed to commit intent %s: %v", intentID, err)
	return "failed"
}
