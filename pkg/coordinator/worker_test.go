package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/railsettle/pkg/circuitbreaker"
	"github.com/speedrun-hq/railsettle/pkg/coordinator"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

func TestAutoCommitterCommitsBestSolution(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := coordinator.NewCommitment(f.ledger, f.chain, coordinator.PollConfig{MaxAttempts: 200, Interval: 5 * time.Millisecond}, nil)
	committer := coordinator.NewAutoCommitter(slow, nil, 20*time.Millisecond, 2, nil)
	committer.Start(ctx)

	intentID := f.createIntent(t)
	require.True(t, committer.Enqueue(intentID))

	f.submit(t, intentID, solverA, "400")
	cheap := f.submit(t, intentID, solverB, "250")

	require.Eventually(t, func() bool {
		intent, err := f.ledger.GetIntent(ctx, intentID)
		return err == nil && intent.State == models.StateSolutionCommitted
	}, 2*time.Second, 5*time.Millisecond)

	intent, err := f.ledger.GetIntent(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, cheap, *intent.WinningSolutionID)

	cancel()
	committer.Wait()
}

func TestAutoCommitterGivesUpWithoutSolutions(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	committer := coordinator.NewAutoCommitter(f.commitment, nil, 0, 1, nil)
	committer.Start(ctx)

	intentID := f.createIntent(t)
	require.True(t, committer.Enqueue(intentID))

	// fastPoll allows three attempts one millisecond apart
	time.Sleep(50 * time.Millisecond)
	intent, err := f.ledger.GetIntent(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCreated, intent.State)
	assert.Empty(t, f.chain.CallsFor("commit"))

	cancel()
	committer.Wait()
}

func TestAutoCommitterSkipsWhenBreakerOpen(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	breaker := circuitbreaker.NewCircuitBreaker(true, 1, time.Minute, time.Minute, nil)
	breaker.RecordFailure()
	require.True(t, breaker.IsOpen())

	committer := coordinator.NewAutoCommitter(f.commitment, breaker, 0, 1, nil)
	committer.Start(ctx)

	intentID := f.createIntent(t)
	f.submit(t, intentID, solverA, "400")
	require.True(t, committer.Enqueue(intentID))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.chain.CallsFor("commit"))

	cancel()
	committer.Wait()
}
