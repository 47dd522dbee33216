// Package coordinator drives intents through their lifecycle.
//
// Every transition follows the same shape: check preconditions against the
// ledger, make the slow chain call outside any lock, then apply the result
// with a single compare-and-swap ledger transition. A failed chain call
// leaves the ledger untouched.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
	"github.com/speedrun-hq/railsettle/pkg/poller"
)

// PollConfig bounds the waits performed by the coordinators
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollConfig polls every 2 seconds for a minute
var DefaultPollConfig = PollConfig{MaxAttempts: 30, Interval: 2 * time.Second}

// base holds what both coordinators share
type base struct {
	ledger *ledger.Ledger
	// chain is nil when no chain is configured; operator calls then fail with chain.ErrReadOnly
	chain  chain.Collaborator
	poll   PollConfig
	logger logger.Logger
}

func newBase(l *ledger.Ledger, c chain.Collaborator, poll PollConfig, log logger.Logger) base {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if poll.MaxAttempts < 1 {
		poll = DefaultPollConfig
	}
	return base{ledger: l, chain: c, poll: poll, logger: log}
}

func (b *base) requireChain(op, intentID string) error {
	if b.chain == nil {
		return chain.NewError(op, intentID, chain.ErrReadOnly)
	}
	return nil
}

// verify confirms a client-reported transaction when a chain client is available
func (b *base) verify(ctx context.Context, intentID, txHash string) error {
	if b.chain == nil {
		return nil
	}
	if err := b.chain.VerifyTransaction(ctx, txHash); err != nil {
		if errors.Is(err, chain.ErrInvalidTxHash) {
			return fmt.Errorf("intent %s: %v: %w", intentID, err, ledger.ErrInvalidInput)
		}
		return fmt.Errorf("intent %s: %w", intentID, err)
	}
	return nil
}

// winningPair loads a solution, its intent and checks the solution won the auction
func (b *base) winningPair(ctx context.Context, solutionID string) (models.Intent, models.Solution, error) {
	solution, err := b.ledger.GetSolution(ctx, solutionID)
	if err != nil {
		return models.Intent{}, models.Solution{}, err
	}
	intent, err := b.ledger.GetIntent(ctx, solution.IntentID)
	if err != nil {
		return models.Intent{}, models.Solution{}, err
	}
	if intent.WinningSolutionID != nil && *intent.WinningSolutionID != solutionID {
		return intent, solution, fmt.Errorf("solution %s is not the winning solution of intent %s: %w",
			solutionID, intent.ID, ledger.ErrInvalidState)
	}
	return intent, solution, nil
}

// winner returns the committed winning solution of an intent
func (b *base) winner(ctx context.Context, intent models.Intent) (models.Solution, error) {
	if intent.WinningSolutionID == nil {
		return models.Solution{}, fmt.Errorf("intent %s has no winning solution: %w", intent.ID, ledger.ErrInvalidState)
	}
	return b.ledger.GetSolution(ctx, *intent.WinningSolutionID)
}

func expectState(intent models.Intent, from, to models.IntentState) error {
	if intent.State == from {
		return nil
	}
	err := ledger.ErrInvalidState
	if to == models.StateResolved && intent.State == models.StateResolved {
		err = ledger.ErrAlreadyResolved
	}
	return &ledger.TransitionError{IntentID: intent.ID, From: from, To: to, Current: intent.State, Err: err}
}

// sameAddress compares two hex addresses case-insensitively
func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// WaitForState polls the ledger until the intent reaches target. It stops
// early with ErrInvalidState when the intent ends in a different terminal
// state, and returns a *poller.TimeoutExceededError when attempts run out.
func (b *base) WaitForState(ctx context.Context, intentID string, target models.IntentState) (models.Intent, error) {
	check := func(ctx context.Context) (models.Intent, bool, error) {
		intent, err := b.ledger.GetIntent(ctx, intentID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return models.Intent{}, false, poller.Permanent(err)
			}
			return models.Intent{}, false, err
		}
		if intent.State == target {
			return intent, true, nil
		}
		if intent.State.IsTerminal() || intent.State.Rank() > target.Rank() {
			return intent, false, poller.Permanent(&ledger.TransitionError{
				IntentID: intentID, To: target, Current: intent.State, Err: ledger.ErrInvalidState,
			})
		}
		return intent, false, nil
	}

	intent, err := poller.PollUntil(ctx, check, b.poll.MaxAttempts, b.poll.Interval)
	if errors.Is(err, poller.ErrTimeoutExceeded) {
		metrics.PollTimeouts.WithLabelValues("wait_state").Inc()
		return models.Intent{}, fmt.Errorf("waiting for intent %s to reach %s: %w", intentID, target, err)
	}
	return intent, err
}
