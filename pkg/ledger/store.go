package ledger

import (
	"context"
	"time"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Effects are the fields written atomically together with a state change.
// Solution fields apply to the intent's winning solution.
type Effects struct {
	WinningSolutionID *string
	CommitmentTxHash  *string
	SettlementTxHash  *string
	// ResolutionTxHash is recorded on both the intent and the winning solution
	ResolutionTxHash *string
	PaymentMetadata  *models.PaymentMetadata
	ClaimedAt        *time.Time
}

// TxHash returns the transaction hash carried by the effects, if any
func (e Effects) TxHash() string {
	for _, h := range []*string{e.CommitmentTxHash, e.SettlementTxHash, e.ResolutionTxHash} {
		if h != nil {
			return *h
		}
	}
	return ""
}

// IntentFilter narrows ListIntents, zero values match everything
type IntentFilter struct {
	State          models.IntentState
	CreatorAddress string
	Limit          int
}

// Store is the persistence contract of the ledger.
//
// Transition must be a compare-and-swap: it changes the state only if the
// stored state equals from, and applies the effects in the same atomic
// write. It returns ErrStaleTransition when the state does not match,
// ErrNotFound when the intent does not exist and ErrInvalidInput when the
// winning solution does not belong to the intent.
type Store interface {
	CreateIntent(ctx context.Context, intent models.Intent) error
	GetIntent(ctx context.Context, id string) (models.Intent, error)
	ListIntents(ctx context.Context, filter IntentFilter) ([]models.Intent, error)

	// CreateSolution returns ErrNotFound if the referenced intent does not exist
	CreateSolution(ctx context.Context, solution models.Solution) error
	GetSolution(ctx context.Context, id string) (models.Solution, error)
	// ListSolutions returns the solutions of an intent in submission order
	ListSolutions(ctx context.Context, intentID string) ([]models.Solution, error)

	Transition(ctx context.Context, intentID string, from, to models.IntentState, effects Effects, at time.Time) (models.Intent, error)

	Ping(ctx context.Context) error
	Backend() string
}
