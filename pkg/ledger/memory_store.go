package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// MemoryStore is an in-process Store. The mutex is the serialization point for Transition.
type MemoryStore struct {
	mu                sync.RWMutex
	intents           map[string]models.Intent
	solutions         map[string]models.Solution
	solutionsByIntent map[string][]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:           make(map[string]models.Intent),
		solutions:         make(map[string]models.Solution),
		solutionsByIntent: make(map[string][]string),
	}
}

func (s *MemoryStore) CreateIntent(_ context.Context, intent models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.ID]; exists {
		return ErrInvalidInput
	}
	s.intents[intent.ID] = intent
	return nil
}

func (s *MemoryStore) GetIntent(_ context.Context, id string) (models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[id]
	if !ok {
		return models.Intent{}, ErrNotFound
	}
	return intent, nil
}

func (s *MemoryStore) ListIntents(_ context.Context, filter IntentFilter) ([]models.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Intent, 0)
	for _, intent := range s.intents {
		if filter.State != "" && intent.State != filter.State {
			continue
		}
		if filter.CreatorAddress != "" && !strings.EqualFold(intent.CreatorAddress, filter.CreatorAddress) {
			continue
		}
		result = append(result, intent)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *MemoryStore) CreateSolution(_ context.Context, solution models.Solution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intents[solution.IntentID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.solutions[solution.ID]; exists {
		return ErrInvalidInput
	}
	s.solutions[solution.ID] = solution
	s.solutionsByIntent[solution.IntentID] = append(s.solutionsByIntent[solution.IntentID], solution.ID)
	return nil
}

func (s *MemoryStore) GetSolution(_ context.Context, id string) (models.Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	solution, ok := s.solutions[id]
	if !ok {
		return models.Solution{}, ErrNotFound
	}
	return solution, nil
}

func (s *MemoryStore) ListSolutions(_ context.Context, intentID string) ([]models.Solution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.intents[intentID]; !ok {
		return nil, ErrNotFound
	}
	ids := s.solutionsByIntent[intentID]
	result := make([]models.Solution, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.solutions[id])
	}
	return result, nil
}

func (s *MemoryStore) Transition(_ context.Context, intentID string, from, to models.IntentState, effects Effects, at time.Time) (models.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[intentID]
	if !ok {
		return models.Intent{}, ErrNotFound
	}
	if intent.State != from {
		return intent, ErrStaleTransition
	}

	winnerID := intent.WinningSolutionID
	if effects.WinningSolutionID != nil {
		if winnerID != nil {
			return intent, ErrInvalidState
		}
		winner, ok := s.solutions[*effects.WinningSolutionID]
		if !ok || winner.IntentID != intentID {
			return intent, ErrInvalidInput
		}
		winnerID = effects.WinningSolutionID
	}

	// all checks passed, nothing below can fail
	if winnerID != nil {
		solution := s.solutions[*winnerID]
		if effects.CommitmentTxHash != nil {
			solution.CommitmentTxHash = effects.CommitmentTxHash
		}
		if effects.SettlementTxHash != nil {
			solution.SettlementTxHash = effects.SettlementTxHash
		}
		if effects.ResolutionTxHash != nil {
			solution.ResolutionTxHash = effects.ResolutionTxHash
		}
		if effects.PaymentMetadata != nil {
			solution.PaymentMetadata = effects.PaymentMetadata
		}
		s.solutions[*winnerID] = solution
	}

	intent.State = to
	intent.WinningSolutionID = winnerID
	if effects.ResolutionTxHash != nil {
		intent.ResolutionTxHash = effects.ResolutionTxHash
	}
	if effects.ClaimedAt != nil {
		intent.ClaimedAt = effects.ClaimedAt
	}
	intent.UpdatedAt = at
	s.intents[intentID] = intent

	return intent, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Backend() string {
	return "memory"
}
