package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/speedrun-hq/railsettle/pkg/auction"
	"github.com/speedrun-hq/railsettle/pkg/ledger"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
	"github.com/speedrun-hq/railsettle/pkg/taskstore"
)

// Executor publishes the current winning solution of an intent as a task for validators
type Executor struct {
	source SolutionSource
	tasks  taskstore.Store
	now    func() time.Time
	logger logger.Logger
}

// NewExecutor creates an executor
func NewExecutor(source SolutionSource, tasks taskstore.Store, log logger.Logger) *Executor {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Executor{source: source, tasks: tasks, now: time.Now, logger: log}
}

// Execute publishes the committed winner of the intent, or the best bid
// while nothing is committed, and returns the task handle.
func (e *Executor) Execute(ctx context.Context, intentID string) (string, models.TaskPayload, error) {
	intent, err := e.source.GetIntent(ctx, intentID)
	if err != nil {
		return "", models.TaskPayload{}, err
	}
	pool, err := e.source.ListSolutions(ctx, intentID)
	if err != nil {
		return "", models.TaskPayload{}, err
	}

	var chosen models.Solution
	if intent.WinningSolutionID != nil {
		found := false
		for _, s := range pool {
			if s.ID == *intent.WinningSolutionID {
				chosen, found = s, true
				break
			}
		}
		if !found {
			return "", models.TaskPayload{}, fmt.Errorf("winning solution %s of intent %s: %w",
				*intent.WinningSolutionID, intentID, ledger.ErrNotFound)
		}
	} else {
		chosen, err = auction.SelectWinner(pool)
		if err != nil {
			return "", models.TaskPayload{}, fmt.Errorf("intent %s: %w: %w", intentID, err, ledger.ErrInvalidState)
		}
	}

	payload := models.TaskPayload{
		Solution: chosen,
		Metadata: models.TaskMetadata{IntentID: intentID, ProcessedAt: e.now().UTC()},
	}
	handle, err := e.tasks.Publish(ctx, payload)
	if err != nil {
		return "", models.TaskPayload{}, fmt.Errorf("failed to publish task for intent %s: %w", intentID, err)
	}

	metrics.TasksPublished.Inc()
	e.logger.Info("Published solution %s of intent %s as task %s", chosen.ID, intentID, handle)
	return handle, payload, nil
}
