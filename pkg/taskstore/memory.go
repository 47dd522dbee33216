package taskstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// MemoryStore keeps tasks in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string][]byte)}
}

func (s *MemoryStore) Publish(_ context.Context, payload models.TaskPayload) (string, error) {
	data, handle, err := Encode(payload)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tasks[handle] = data
	s.mu.Unlock()
	return handle, nil
}

func (s *MemoryStore) Fetch(_ context.Context, handle string) (models.TaskPayload, error) {
	s.mu.RLock()
	data, ok := s.tasks[handle]
	s.mu.RUnlock()
	if !ok {
		return models.TaskPayload{}, fmt.Errorf("%s: %w", handle, ErrNotFound)
	}
	return decode(handle, data)
}

func (s *MemoryStore) Backend() string {
	return "memory"
}
