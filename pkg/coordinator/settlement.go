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
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Settlement moves claimed intents to SETTLED or RESOLVED
type Settlement struct {
	base
	emergencyTimeout time.Duration
}

// NewSettlement creates a settlement coordinator. c may be nil, in which
// case only client-recorded settlements and resolutions are accepted.
func NewSettlement(l *ledger.Ledger, c chain.Collaborator, poll PollConfig, emergencyTimeout time.Duration, log logger.Logger) *Settlement {
	return &Settlement{base: newBase(l, c, poll, log), emergencyTimeout: emergencyTimeout}
}

// checkSettler enforces that only the winning solver settles
func checkSettler(intentID string, winner models.Solution, settlerAddress string) error {
	if strings.TrimSpace(settlerAddress) == "" {
		return fmt.Errorf("settlerAddress is required: %w", ledger.ErrInvalidInput)
	}
	if !sameAddress(settlerAddress, winner.SolverAddress) {
		return fmt.Errorf("%s is not the winning solver of intent %s: %w", settlerAddress, intentID, ledger.ErrForbidden)
	}
	return nil
}

// RecordSettlement records a settlement the winning solver sent on chain itself
func (s *Settlement) RecordSettlement(ctx context.Context, solutionID, settlerAddress, settlementTxHash string) (models.Intent, error) {
	settlementTxHash = strings.TrimSpace(settlementTxHash)
	if settlementTxHash == "" {
		return models.Intent{}, fmt.Errorf("settlementTxHash is required: %w", ledger.ErrInvalidInput)
	}

	intent, solution, err := s.winningPair(ctx, solutionID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := checkSettler(intent.ID, solution, settlerAddress); err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StatePaymentClaimed, models.StateSettled); err != nil {
		return models.Intent{}, err
	}
	if err := s.verify(ctx, intent.ID, settlementTxHash); err != nil {
		return models.Intent{}, err
	}

	return s.ledger.Transition(ctx, intent.ID, models.StatePaymentClaimed, models.StateSettled, ledger.Effects{
		SettlementTxHash: &settlementTxHash,
	})
}

// Settle releases the solver's bond on chain and records the settlement
func (s *Settlement) Settle(ctx context.Context, intentID, settlerAddress string) (models.Intent, error) {
	intent, err := s.ledger.GetIntent(ctx, intentID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StatePaymentClaimed, models.StateSettled); err != nil {
		return models.Intent{}, err
	}
	winner, err := s.winner(ctx, intent)
	if err != nil {
		return models.Intent{}, err
	}
	if err := checkSettler(intentID, winner, settlerAddress); err != nil {
		return models.Intent{}, err
	}
	if err := s.requireChain("settle", intentID); err != nil {
		return models.Intent{}, err
	}

	txHash, err := s.chain.Settle(ctx, intentID)
	if err != nil {
		s.logger.ErrorWithChain(s.chain.ChainID(), "Settlement of intent %s failed: %v", intentID, err)
		return models.Intent{}, err
	}

	return s.ledger.Transition(ctx, intentID, models.StatePaymentClaimed, models.StateSettled, ledger.Effects{
		SettlementTxHash: &txHash,
	})
}

// RecordResolution records a resolution the claimant sent on chain itself
func (s *Settlement) RecordResolution(ctx context.Context, solutionID, resolutionTxHash string) (models.Intent, error) {
	resolutionTxHash = strings.TrimSpace(resolutionTxHash)
	if resolutionTxHash == "" {
		return models.Intent{}, fmt.Errorf("resolutionTxHash is required: %w", ledger.ErrInvalidInput)
	}

	intent, _, err := s.winningPair(ctx, solutionID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StatePaymentClaimed, models.StateResolved); err != nil {
		return models.Intent{}, err
	}
	if err := s.verify(ctx, intent.ID, resolutionTxHash); err != nil {
		return models.Intent{}, err
	}

	return s.resolve(ctx, intent.ID, resolutionTxHash)
}

// ResolveWithProof resolves a claimed intent on chain with a proof of payment
func (s *Settlement) ResolveWithProof(ctx context.Context, intentID string, proof []byte) (models.Intent, error) {
	intent, err := s.ledger.GetIntent(ctx, intentID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StatePaymentClaimed, models.StateResolved); err != nil {
		return models.Intent{}, err
	}
	if len(proof) == 0 {
		return models.Intent{}, fmt.Errorf("proof is required: %w", ledger.ErrInvalidInput)
	}
	if err := s.requireChain("resolveWithProof", intentID); err != nil {
		return models.Intent{}, err
	}

	txHash, err := s.chain.ResolveWithProof(ctx, intentID, proof)
	if err != nil {
		s.logger.ErrorWithChain(s.chain.ChainID(), "Resolution of intent %s with proof failed: %v", intentID, err)
		return models.Intent{}, err
	}
	return s.resolve(ctx, intentID, txHash)
}

// EmergencyResolve resolves a claimed intent whose solver neither settled
// nor disputed within the emergency timeout
func (s *Settlement) EmergencyResolve(ctx context.Context, intentID string) (models.Intent, error) {
	intent, err := s.ledger.GetIntent(ctx, intentID)
	if err != nil {
		return models.Intent{}, err
	}
	if err := expectState(intent, models.StatePaymentClaimed, models.StateResolved); err != nil {
		return models.Intent{}, err
	}
	if intent.ClaimedAt == nil {
		return models.Intent{}, fmt.Errorf("intent %s has no claim time: %w", intentID, ledger.ErrInvalidState)
	}
	if deadline := intent.ClaimedAt.Add(s.emergencyTimeout); s.ledger.Now().Before(deadline) {
		return models.Intent{}, fmt.Errorf("emergency timeout of intent %s elapses at %s: %w",
			intentID, deadline.UTC().Format(time.RFC3339), ledger.ErrInvalidState)
	}
	if err := s.requireChain("emergencyResolve", intentID); err != nil {
		return models.Intent{}, err
	}

	txHash, err := s.chain.EmergencyResolve(ctx, intentID)
	if err != nil {
		s.logger.ErrorWithChain(s.chain.ChainID(), "Emergency resolution of intent %s failed: %v", intentID, err)
		return models.Intent{}, err
	}
	return s.resolve(ctx, intentID, txHash)
}

// resolve applies the resolution. When a concurrent resolution won the
// race the loser gets ErrAlreadyResolved.
func (s *Settlement) resolve(ctx context.Context, intentID, txHash string) (models.Intent, error) {
	intent, err := s.ledger.Transition(ctx, intentID, models.StatePaymentClaimed, models.StateResolved, ledger.Effects{
		ResolutionTxHash: &txHash,
	})
	var terr *ledger.TransitionError
	if errors.As(err, &terr) && errors.Is(err, ledger.ErrStaleTransition) && terr.Current == models.StateResolved {
		terr.Err = ledger.ErrAlreadyResolved
	}
	return intent, err
}
