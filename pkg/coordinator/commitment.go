package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/speedrun-hq/railsettle/pkg/auction"
	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
	"github.com/speedrun-hq/railsettle/pkg/poller"
)

// Commitment moves intents from CREATED to SOLUTION_COMMITTED and records payment claims
type Commitment struct {
	base
}

// NewCommitment creates a commitment coordinator. c may be nil, in which
// case only client-recorded commitments are accepted.
func NewCommitment(l *ledger.Ledger, c chain.Collaborator, poll PollConfig, log logger.Logger) *Commitment {
	return &Commitment{base: newBase(l, c, poll, log)}
}

// Commit selects the best solution of a CREATED intent, commits it on chain
// and records the winner. When the chain call fails the intent stays CREATED
// and can be committed again. Losing a race to a concurrent committer returns
// ErrStaleTransition.
func (c *Commitment) Commit(ctx context.Context, intentID string) (models.Intent, error) {
	intent, err := c.ledger.GetIntent(ctx, intentID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StateCreated, models.StateSolutionCommitted); err != nil {
		return models.Intent{}, err
	}

	solutions, err := c.ledger.ListSolutions(ctx, intentID)
	if err != nil {
		return models.Intent{}, err
	}
	winner, err := auction.SelectWinner(solutions)
	if err != nil {
		return models.Intent{}, fmt.Errorf("intent %s: %w: %w", intentID, err, ledger.ErrInvalidState)
	}

	if err := c.requireChain("commit", intentID); err != nil {
		return models.Intent{}, err
	}

	c.logger.InfoWithChain(c.chain.ChainID(), "Committing solution %s (%s wei from %s) for intent %s",
		winner.ID, winner.AmountWei, winner.SolverAddress, intentID)

	txHash, err := c.chain.Commit(ctx, intent, winner)
	if err != nil {
		c.logger.ErrorWithChain(c.chain.ChainID(), "Commit of intent %s failed, intent stays %s: %v",
			intentID, models.StateCreated, err)
		return models.Intent{}, err
	}

	updated, err := c.ledger.Transition(ctx, intentID, models.StateCreated, models.StateSolutionCommitted, ledger.Effects{
		WinningSolutionID: &winner.ID,
		CommitmentTxHash:  &txHash,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrStaleTransition) {
			c.logger.NoticeWithChain(c.chain.ChainID(), "Intent %s was committed concurrently, commitment %s not recorded",
				intentID, txHash)
		}
		return models.Intent{}, err
	}
	return updated, nil
}

// Accept records a commitment the solver sent on chain itself. The solution
// must price at the current minimum of the intent's pool.
func (c *Commitment) Accept(ctx context.Context, solutionID, commitmentTxHash string) (models.Intent, error) {
	commitmentTxHash = strings.TrimSpace(commitmentTxHash)
	if commitmentTxHash == "" {
		return models.Intent{}, fmt.Errorf("commitmentTxHash is required: %w", ledger.ErrInvalidInput)
	}

	solution, err := c.ledger.GetSolution(ctx, solutionID)
	if err != nil {
		return models.Intent{}, err
	}
	intent, err := c.ledger.GetIntent(ctx, solution.IntentID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StateCreated, models.StateSolutionCommitted); err != nil {
		return models.Intent{}, err
	}

	solutions, err := c.ledger.ListSolutions(ctx, intent.ID)
	if err != nil {
		return models.Intent{}, err
	}
	best, err := auction.SelectWinner(solutions)
	if err != nil {
		return models.Intent{}, fmt.Errorf("intent %s: %w: %w", intent.ID, err, ledger.ErrInvalidState)
	}
	// equal bids are ordered too, so only the selected solution may be accepted
	if best.ID != solutionID {
		return models.Intent{}, fmt.Errorf("solution %s bids %s wei but the auction winner is %s at %s wei: %w",
			solutionID, solution.AmountWei, best.ID, best.AmountWei, ledger.ErrInvalidInput)
	}

	if err := c.verify(ctx, intent.ID, commitmentTxHash); err != nil {
		return models.Intent{}, err
	}

	return c.ledger.Transition(ctx, intent.ID, models.StateCreated, models.StateSolutionCommitted, ledger.Effects{
		WinningSolutionID: &solutionID,
		CommitmentTxHash:  &commitmentTxHash,
	})
}

// Claim records the payer's attestation that the rail payment was sent
func (c *Commitment) Claim(ctx context.Context, solutionID string, metadata *models.PaymentMetadata) (models.Intent, error) {
	intent, _, err := c.winningPair(ctx, solutionID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := metadata.Validate(); err != nil {
		return models.Intent{}, fmt.Errorf("%v: %w", err, ledger.ErrInvalidProofOfPayment)
	}
	if err := expectState(intent, models.StateSolutionCommitted, models.StatePaymentClaimed); err != nil {
		return models.Intent{}, err
	}

	return c.ledger.Transition(ctx, intent.ID, models.StateSolutionCommitted, models.StatePaymentClaimed, ledger.Effects{
		PaymentMetadata: metadata,
	})
}

// WaitForSolutions polls until at least one solution was submitted for the intent
func (c *Commitment) WaitForSolutions(ctx context.Context, intentID string) ([]models.Solution, error) {
	check := func(ctx context.Context) ([]models.Solution, bool, error) {
		solutions, err := c.ledger.ListSolutions(ctx, intentID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return nil, false, poller.Permanent(err)
			}
			return nil, false, err
		}
		return solutions, len(solutions) > 0, nil
	}

	solutions, err := poller.PollUntil(ctx, check, c.poll.MaxAttempts, c.poll.Interval)
	if errors.Is(err, poller.ErrTimeoutExceeded) {
		metrics.PollTimeouts.WithLabelValues("wait_solutions").Inc()
		return nil, fmt.Errorf("waiting for solutions of intent %s: %w", intentID, err)
	}
	return solutions, err
}
