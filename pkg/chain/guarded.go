package chain

import (
	"context"
	"math/big"
	"strconv"

	"github.com/speedrun-hq/railsettle/pkg/circuitbreaker"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Guarded wraps a Collaborator with a circuit breaker. While the breaker is
// open, write calls fail fast with a chain error instead of reaching the RPC.
// Only retryable failures (network, node, gas, nonce) count towards tripping.
type Guarded struct {
	inner   Collaborator
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

var _ Collaborator = (*Guarded)(nil)

// NewGuarded wraps inner with breaker
func NewGuarded(inner Collaborator, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, logger: log}
}

// Breaker returns the circuit breaker, used by the health server
func (g *Guarded) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

// Unwrap returns the wrapped collaborator
func (g *Guarded) Unwrap() Collaborator {
	return g.inner
}

func (g *Guarded) ChainID() int {
	return g.inner.ChainID()
}

func (g *Guarded) guard(op, intentID string, call func() (string, error)) (string, error) {
	chainLabel := strconv.Itoa(g.inner.ChainID())
	if g.breaker.IsOpen() {
		failureCount, lastFailure, _, _ := g.breaker.GetState()
		g.logger.ErrorWithChain(g.inner.ChainID(), "Circuit breaker open (last failure: %v, failure count: %d), skipping %s for intent %s",
			lastFailure, failureCount, op, intentID)
		metrics.CircuitBreakerOpen.WithLabelValues(chainLabel).Set(1)
		return "", NewError(op, intentID, circuitbreaker.ErrOpen)
	}

	txHash, err := call()
	if err != nil {
		if retryable, _ := ClassifyError(err); retryable && g.breaker.RecordFailure() {
			metrics.CircuitBreakerOpen.WithLabelValues(chainLabel).Set(1)
		}
		return "", err
	}
	g.breaker.RecordSuccess()
	metrics.CircuitBreakerOpen.WithLabelValues(chainLabel).Set(0)
	return txHash, nil
}

func (g *Guarded) Commit(ctx context.Context, intent models.Intent, solution models.Solution) (string, error) {
	return g.guard("commitToSolution", intent.ID, func() (string, error) {
		return g.inner.Commit(ctx, intent, solution)
	})
}

func (g *Guarded) Settle(ctx context.Context, intentID string) (string, error) {
	return g.guard("settle", intentID, func() (string, error) {
		return g.inner.Settle(ctx, intentID)
	})
}

func (g *Guarded) ResolveWithProof(ctx context.Context, intentID string, proof []byte) (string, error) {
	return g.guard("resolveWithProof", intentID, func() (string, error) {
		return g.inner.ResolveWithProof(ctx, intentID, proof)
	})
}

func (g *Guarded) EmergencyResolve(ctx context.Context, intentID string) (string, error) {
	return g.guard("emergencyResolve", intentID, func() (string, error) {
		return g.inner.EmergencyResolve(ctx, intentID)
	})
}

// CalculateTotalAmount is a read and is not guarded
func (g *Guarded) CalculateTotalAmount(ctx context.Context, paymentAmount *big.Int) (*big.Int, error) {
	return g.inner.CalculateTotalAmount(ctx, paymentAmount)
}

// VerifyTransaction is a read and is not guarded
func (g *Guarded) VerifyTransaction(ctx context.Context, txHash string) error {
	return g.inner.VerifyTransaction(ctx, txHash)
}
