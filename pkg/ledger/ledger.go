// Package ledger is the durable record of intents and solutions and the owner of their state transitions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/speedrun-hq/railsettle/pkg/amount"
	"github.com/speedrun-hq/railsettle/pkg/auction"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Observer is notified after a transition has been committed
type Observer func(ctx context.Context, event models.TransitionEvent)

// Ledger validates writes and enforces the intent state graph on top of a Store
type Ledger struct {
	store     Store
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
	observers []Observer
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the id source
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithObserver registers a transition observer
func WithObserver(observer Observer) Option {
	return func(l *Ledger) { l.observers = append(l.observers, observer) }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) { l.logger = log }
}

// New creates a ledger over the given store
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: &logger.EmptyLogger{},
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store
func (l *Ledger) Store() Store {
	return l.store
}

// Now returns the ledger's current time
func (l *Ledger) Now() time.Time {
	return l.now()
}

func normalizeAddress(field, value string) (string, error) {
	if !common.IsHexAddress(value) {
		return "", fmt.Errorf("%s %q is not a valid address: %w", field, value, ErrInvalidInput)
	}
	return common.HexToAddress(value).Hex(), nil
}

// CreateIntent validates the spec and records a new CREATED intent
func (l *Ledger) CreateIntent(ctx context.Context, spec models.IntentSpec) (string, error) {
	paymentToken, err := normalizeAddress("paymentToken", spec.PaymentToken)
	if err != nil {
		return "", err
	}
	creator, err := normalizeAddress("creatorAddress", spec.CreatorAddress)
	if err != nil {
		return "", err
	}
	if err := amount.Validate(spec.PaymentTokenAmount); err != nil {
		return "", fmt.Errorf("paymentTokenAmount: %v: %w", err, ErrInvalidAmount)
	}
	if err := amount.Validate(spec.RailAmount); err != nil {
		return "", fmt.Errorf("railAmount: %v: %w", err, ErrInvalidAmount)
	}
	rail, err := models.ParseRailType(string(spec.RailType))
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	recipient := strings.TrimSpace(spec.RecipientAddress)
	if recipient == "" {
		return "", fmt.Errorf("recipientAddress is required: %w", ErrInvalidInput)
	}
	if spec.ChainID <= 0 {
		return "", fmt.Errorf("chainId must be positive: %w", ErrInvalidInput)
	}

	now := l.now()
	intent := models.Intent{
		ID:                 l.newID(),
		PaymentToken:       paymentToken,
		PaymentTokenAmount: spec.PaymentTokenAmount,
		RailType:           rail,
		RecipientAddress:   recipient,
		RailAmount:         spec.RailAmount,
		CreatorAddress:     creator,
		ChainID:            spec.ChainID,
		CreatedAt:          now,
		State:              models.StateCreated,
		UpdatedAt:          now,
	}
	if err := l.store.CreateIntent(ctx, intent); err != nil {
		return "", fmt.Errorf("failed to create intent: %w", err)
	}

	metrics.IntentsCreated.WithLabelValues(string(rail)).Inc()
	l.logger.InfoWithChain(intent.ChainID, "Created intent %s (%s %s %s to %s)",
		intent.ID, rail, intent.RailAmount, rail.SmallestUnit(), intent.RecipientAddress)
	return intent.ID, nil
}

// SubmitSolution records a solver's bid. Bids are accepted in any intent
// state; bids arriving after the winner is chosen are kept but never selected.
func (l *Ledger) SubmitSolution(ctx context.Context, intentID string, candidate models.SolutionCandidate) (string, error) {
	if err := amount.Validate(candidate.AmountWei); err != nil {
		return "", fmt.Errorf("amountWei: %v: %w", err, ErrInvalidAmount)
	}
	solver, err := normalizeAddress("solverAddress", candidate.SolverAddress)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(candidate.Signature) == "" {
		return "", fmt.Errorf("signature is required: %w", ErrInvalidInput)
	}

	solution := models.Solution{
		ID:            l.newID(),
		IntentID:      intentID,
		SolverAddress: solver,
		AmountWei:     candidate.AmountWei,
		Signature:     candidate.Signature,
		CreatedAt:     l.now(),
	}
	if err := l.store.CreateSolution(ctx, solution); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("intent %s: %w", intentID, ErrUnknownIntent)
		}
		return "", fmt.Errorf("failed to submit solution: %w", err)
	}

	metrics.SolutionsSubmitted.Inc()
	l.logger.Debug("Solver %s bid %s wei on intent %s (solution %s)", solver, solution.AmountWei, intentID, solution.ID)
	return solution.ID, nil
}

// GetIntent returns an intent by id
func (l *Ledger) GetIntent(ctx context.Context, id string) (models.Intent, error) {
	intent, err := l.store.GetIntent(ctx, id)
	if err != nil {
		return models.Intent{}, fmt.Errorf("intent %s: %w", id, err)
	}
	return intent, nil
}

// GetSolution returns a solution by id
func (l *Ledger) GetSolution(ctx context.Context, id string) (models.Solution, error) {
	solution, err := l.store.GetSolution(ctx, id)
	if err != nil {
		return models.Solution{}, fmt.Errorf("solution %s: %w", id, err)
	}
	return solution, nil
}

// ListSolutions returns the solutions of an intent in auction order, best first
func (l *Ledger) ListSolutions(ctx context.Context, intentID string) ([]models.Solution, error) {
	solutions, err := l.store.ListSolutions(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("intent %s: %w", intentID, err)
	}
	return auction.Sort(solutions), nil
}

// ListIntents returns intents newest first with their winning solution embedded
func (l *Ledger) ListIntents(ctx context.Context, filter IntentFilter) ([]models.IntentWithSolution, error) {
	intents, err := l.store.ListIntents(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make([]models.IntentWithSolution, 0, len(intents))
	for _, intent := range intents {
		item := models.IntentWithSolution{Intent: intent}
		if intent.WinningSolutionID != nil {
			winner, err := l.store.GetSolution(ctx, *intent.WinningSolutionID)
			if err != nil {
				return nil, fmt.Errorf("winning solution of intent %s: %w", intent.ID, err)
			}
			item.WinningSolution = &winner
		}
		result = append(result, item)
	}
	return result, nil
}

// validateEffects checks that the effects match what the transition is allowed to write
func validateEffects(to models.IntentState, effects Effects) error {
	switch to {
	case models.StateSolutionCommitted:
		if effects.WinningSolutionID == nil {
			return fmt.Errorf("winningSolutionId is required: %w", ErrInvalidInput)
		}
		if effects.CommitmentTxHash == nil || *effects.CommitmentTxHash == "" {
			return fmt.Errorf("commitmentTxHash is required: %w", ErrInvalidInput)
		}
		return nil
	case models.StatePaymentClaimed:
		if err := effects.PaymentMetadata.Validate(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidProofOfPayment)
		}
	case models.StateSettled:
		if effects.SettlementTxHash == nil || *effects.SettlementTxHash == "" {
			return fmt.Errorf("settlementTxHash is required: %w", ErrInvalidInput)
		}
	case models.StateResolved:
		if effects.ResolutionTxHash == nil || *effects.ResolutionTxHash == "" {
			return fmt.Errorf("resolutionTxHash is required: %w", ErrInvalidInput)
		}
	}
	if effects.WinningSolutionID != nil {
		return fmt.Errorf("winningSolutionId can only be set when committing: %w", ErrInvalidState)
	}
	return nil
}

// Transition moves an intent from one state to the next, applying effects in
// the same atomic write. It fails with ErrStaleTransition when the intent is
// no longer in the from state.
func (l *Ledger) Transition(ctx context.Context, intentID string, from, to models.IntentState, effects Effects) (models.Intent, error) {
	fail := func(current models.IntentState, err error) (models.Intent, error) {
		return models.Intent{}, &TransitionError{IntentID: intentID, From: from, To: to, Current: current, Err: err}
	}

	if !from.CanTransition(to) {
		return fail("", ErrInvalidState)
	}
	if err := validateEffects(to, effects); err != nil {
		return fail("", err)
	}

	at := l.now()
	if to == models.StatePaymentClaimed && effects.ClaimedAt == nil {
		effects.ClaimedAt = &at
	}

	intent, err := l.store.Transition(ctx, intentID, from, to, effects, at)
	if err != nil {
		metrics.TransitionConflicts.WithLabelValues(string(to), transitionErrorLabel(err)).Inc()
		return fail(intent.State, err)
	}

	metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	l.logger.InfoWithChain(intent.ChainID, "Intent %s transitioned %s -> %s", intentID, from, to)

	event := models.TransitionEvent{
		IntentID: intentID,
		From:     from,
		To:       to,
		TxHash:   effects.TxHash(),
		At:       at,
	}
	if intent.WinningSolutionID != nil {
		event.SolutionID = *intent.WinningSolutionID
	}
	for _, observer := range l.observers {
		observer(ctx, event)
	}
	return intent, nil
}

func transitionErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrStaleTransition):
		return "stale"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	}
	return "store_error"
}

// Ping checks the store is reachable
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
