// Package taskstore publishes execution tasks for validators.
//
// Tasks are content addressed: the handle of a task is the keccak256 hash
// of its canonical (RFC 8785) JSON encoding, so any party holding the
// payload can recompute the handle.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// ErrNotFound is returned when no task is stored under a handle
var ErrNotFound = errors.New("task not found")

// Store is the off-chain task store
type Store interface {
	// Publish stores the payload and returns its handle
	Publish(ctx context.Context, payload models.TaskPayload) (string, error)
	// Fetch returns the payload stored under handle
	Fetch(ctx context.Context, handle string) (models.TaskPayload, error)
	Backend() string
}

// Encode returns the canonical JSON of a payload and its handle
func Encode(payload models.TaskPayload) ([]byte, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal task: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", fmt.Errorf("failed to canonicalize task: %w", err)
	}
	return canonical, crypto.Keccak256Hash(canonical).Hex(), nil
}

func decode(handle string, data []byte) (models.TaskPayload, error) {
	var payload models.TaskPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.TaskPayload{}, fmt.Errorf("task %s is corrupt: %w", handle, err)
	}
	return payload, nil
}
