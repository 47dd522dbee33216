// Package oracle independently validates claimed winning solutions.
//
// A validator fetches the published task, re-reads the current solution
// pool of the intent and re-runs the auction. A claim is approved only when
// it is the cheapest bid still in the pool, is recent and carries well-formed
// payment metadata for the intent's rail.
package oracle

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/railsettle/pkg/amount"
	"github.com/speedrun-hq/railsettle/pkg/auction"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
	"github.com/speedrun-hq/railsettle/pkg/taskstore"
)

// DefaultFreshnessWindow is the maximum age of a validated claim
const DefaultFreshnessWindow = 24 * time.Hour

// SolutionSource provides the current state of an intent. Both the local
// ledger and a remote aggregator satisfy it.
type SolutionSource interface {
	GetIntent(ctx context.Context, id string) (models.Intent, error)
	ListSolutions(ctx context.Context, intentID string) ([]models.Solution, error)
}

// Reason codes reported with a rejected claim
const (
	ReasonOK                = "ok"
	ReasonTaskNotFound      = "task_not_found"
	ReasonMissingFields     = "missing_fields"
	ReasonSourceUnavailable = "source_unavailable"
	ReasonNoSolutions       = "no_solutions"
	ReasonNotCheapest       = "not_cheapest"
	ReasonNotInPool         = "not_in_pool"
	ReasonStale             = "stale"
	ReasonFutureTimestamp   = "future_timestamp"
	ReasonInvalidMetadata   = "invalid_payment_metadata"
	ReasonIntentMismatch    = "intent_mismatch"
)

// Result is the outcome of a validation. Rejection is a normal outcome.
type Result struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

func reject(reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// Oracle validates claims published to the task store
type Oracle struct {
	tasks     taskstore.Store
	source    SolutionSource
	freshness time.Duration
	now       func() time.Time
	schemas   metadataSchemas
	logger    logger.Logger
}

// Option configures an Oracle
type Option func(*Oracle)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// WithFreshnessWindow sets the maximum age of a claim
func WithFreshnessWindow(d time.Duration) Option {
	return func(o *Oracle) { o.freshness = d }
}

// WithLogger sets the audit logger
func WithLogger(log logger.Logger) Option {
	return func(o *Oracle) { o.logger = log }
}

// New creates an oracle reading tasks from tasks and pools from source
func New(tasks taskstore.Store, source SolutionSource, opts ...Option) (*Oracle, error) {
	schemas, err := compileMetadataSchemas()
	if err != nil {
		return nil, err
	}
	o := &Oracle{
		tasks:     tasks,
		source:    source,
		freshness: DefaultFreshnessWindow,
		now:       time.Now,
		schemas:   schemas,
		logger:    &logger.EmptyLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ValidateClaim validates the task published under proofOfTask. It never
// returns an error: every failure is reported as an invalid result.
func (o *Oracle) ValidateClaim(ctx context.Context, proofOfTask string) Result {
	payload, err := o.tasks.Fetch(ctx, proofOfTask)
	if err != nil {
		return o.record(proofOfTask, reject(ReasonTaskNotFound, err.Error()))
	}
	return o.record(proofOfTask, o.ValidatePayload(ctx, payload))
}

func (o *Oracle) record(proofOfTask string, result Result) Result {
	status := "valid"
	if !result.IsValid {
		status = "invalid"
		o.logger.Notice("Rejected task %s: %s %s", proofOfTask, result.Reason, result.Detail)
	} else {
		o.logger.Info("Approved task %s", proofOfTask)
	}
	metrics.OracleValidations.WithLabelValues(status, result.Reason).Inc()
	return result
}

func missingFields(payload models.TaskPayload) []string {
	s := payload.Solution
	var missing []string
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("solution.id", strings.TrimSpace(s.ID) != "")
	check("solution.intentId", strings.TrimSpace(s.IntentID) != "")
	check("solution.solverAddress", common.IsHexAddress(s.SolverAddress))
	check("solution.amountWei", amount.Validate(s.AmountWei) == nil)
	check("solution.signature", strings.TrimSpace(s.Signature) != "")
	check("solution.createdAt", !s.CreatedAt.IsZero())
	check("metadata.intentId", strings.TrimSpace(payload.Metadata.IntentID) != "")
	return missing
}

// ValidatePayload runs every check against an already fetched task
func (o *Oracle) ValidatePayload(ctx context.Context, payload models.TaskPayload) Result {
	if missing := missingFields(payload); len(missing) > 0 {
		return reject(ReasonMissingFields, strings.Join(missing, ", "))
	}
	claimed := payload.Solution
	if claimed.IntentID != payload.Metadata.IntentID {
		return reject(ReasonIntentMismatch, claimed.IntentID+" != "+payload.Metadata.IntentID)
	}

	intent, err := o.source.GetIntent(ctx, claimed.IntentID)
	if err != nil {
		return reject(ReasonSourceUnavailable, err.Error())
	}
	pool, err := o.source.ListSolutions(ctx, claimed.IntentID)
	if err != nil {
		return reject(ReasonSourceUnavailable, err.Error())
	}
	best, err := auction.SelectWinner(pool)
	if err != nil {
		return reject(ReasonNoSolutions, err.Error())
	}

	if cmp, err := amount.Compare(claimed.AmountWei, best.AmountWei); err != nil || cmp != 0 {
		return reject(ReasonNotCheapest, "claimed "+claimed.AmountWei+" wei, best bid is "+best.AmountWei+" wei")
	}

	inPool := false
	for _, s := range pool {
		if s.ID == claimed.ID {
			inPool = true
			break
		}
	}
	if !inPool {
		return reject(ReasonNotInPool, claimed.ID)
	}

	now := o.now()
	if claimed.CreatedAt.After(now) {
		return reject(ReasonFutureTimestamp, claimed.CreatedAt.UTC().Format(time.RFC3339))
	}
	if claimed.CreatedAt.Before(now.Add(-o.freshness)) {
		return reject(ReasonStale, claimed.CreatedAt.UTC().Format(time.RFC3339))
	}

	if err := claimed.PaymentMetadata.Validate(); err != nil {
		return reject(ReasonInvalidMetadata, err.Error())
	}
	if err := o.schemas.validate(intent.RailType, claimed.PaymentMetadata); err != nil {
		return reject(ReasonInvalidMetadata, err.Error())
	}

	return Result{IsValid: true, Reason: ReasonOK}
}
