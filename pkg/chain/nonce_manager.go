package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/railsettle/pkg/logger"
)

// NonceSource reads the pending nonce of an account
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out nonces for the operator account so that
// concurrent commits, settles and resolves do not collide
type NonceManager struct {
	mu           sync.Mutex
	source       NonceSource
	address      common.Address
	currentNonce uint64
	pending      map[uint64]common.Hash
	lastSync     time.Time
	syncInterval time.Duration
	logger       logger.Logger
}

// NewNonceManager creates a nonce manager for one account
func NewNonceManager(source NonceSource, address common.Address, log logger.Logger) *NonceManager {
	return &NonceManager{
		source:       source,
		address:      address,
		pending:      make(map[uint64]common.Hash),
		syncInterval: 5 * time.Minute,
		logger:       log,
	}
}

// GetNonce reserves and returns the next available nonce
func (nm *NonceManager) GetNonce(ctx context.Context) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	// resync when never synced or stale, and whenever nothing is in flight
	if nm.lastSync.IsZero() || time.Since(nm.lastSync) > nm.syncInterval || len(nm.pending) == 0 {
		if err := nm.syncLocked(ctx); err != nil {
			return 0, err
		}
	}

	nonce := nm.currentNonce
	nm.currentNonce++
	return nonce, nil
}

func (nm *NonceManager) syncLocked(ctx context.Context) error {
	nonce, err := nm.source.PendingNonceAt(ctx, nm.address)
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %w", err)
	}
	if nonce > nm.currentNonce {
		nm.logger.Debug("Updating nonce for %s: %d -> %d", nm.address.Hex(), nm.currentNonce, nonce)
		nm.currentNonce = nonce
	}
	nm.lastSync = time.Now()
	return nil
}

// TrackTransaction records a sent transaction
func (nm *NonceManager) TrackTransaction(txHash common.Hash, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.pending[nonce] = txHash
	nm.logger.Debug("Tracking transaction with nonce %d: %s", nonce, txHash.Hex())
}

// MarkTransactionConfirmed removes a mined transaction from the pending set
func (nm *NonceManager) MarkTransactionConfirmed(nonce uint64) bool {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, exists := nm.pending[nonce]; !exists {
		return false
	}
	delete(nm.pending, nonce)
	return true
}

// MarkTransactionFailed releases a nonce whose transaction never made it on-chain.
// The nonce is reused when no lower nonce is still pending.
func (nm *NonceManager) MarkTransactionFailed(nonce uint64) bool {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, exists := nm.pending[nonce]; !exists {
		return false
	}
	delete(nm.pending, nonce)

	for pendingNonce := range nm.pending {
		if pendingNonce < nonce {
			return false
		}
	}
	if nm.currentNonce > nonce {
		nm.logger.Notice("Reusing nonce %d after transaction failure", nonce)
		nm.currentNonce = nonce
	}
	return true
}

// PendingCount returns the number of transactions still in flight
func (nm *NonceManager) PendingCount() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return len(nm.pending)
}
