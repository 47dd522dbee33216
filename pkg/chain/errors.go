package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrChain matches every *Error
	ErrChain = errors.New("chain error")
	// ErrReverted is returned when a transaction was mined with a failed status
	ErrReverted = errors.New("transaction reverted")
	// ErrSignatureMismatch is returned when the solution signature does not recover to the solver
	ErrSignatureMismatch = errors.New("solution signature does not match solver")
	// ErrReadOnly is returned for write operations when no signing key is configured
	ErrReadOnly = errors.New("chain client has no signing key")
	// ErrInvalidTxHash is returned before any RPC when a reported hash is not 32 hex-encoded bytes
	ErrInvalidTxHash = errors.New("invalid transaction hash")
)

// Error is a failed or reverted collaborator call
type Error struct {
	Op       string
	IntentID string
	Err      error
}

func (e *Error) Error() string {
	if e.IntentID == "" {
		return fmt.Sprintf("chain %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("chain %s failed for intent %s: %v", e.Op, e.IntentID, e.Err)
}

func (e *Error) Is(target error) bool {
	return target == ErrChain
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a chain error, keeping an existing *Error as is
func NewError(op, intentID string, err error) error {
	if err == nil {
		return nil
	}
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return err
	}
	return &Error{Op: op, IntentID: intentID, Err: err}
}

// ClassifyError labels an RPC or contract error and reports whether
// retrying the same call later could succeed.
// Returns (shouldRetry, errorType)
func ClassifyError(err error) (bool, string) {
	if errors.Is(err, ErrSignatureMismatch) {
		return false, "invalid_signature"
	}
	if errors.Is(err, ErrReadOnly) {
		return false, "read_only"
	}
	if errors.Is(err, ErrInvalidTxHash) {
		return false, "invalid_input"
	}
	if errors.Is(err, ErrReverted) {
		return false, "contract_error"
	}

	errStr := err.Error()

	// Network/RPC errors - retry is appropriate
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "EOF") {
		return true, "network_error"
	}

	// RPC node state errors
	if strings.Contains(errStr, "missing trie node") ||
		strings.Contains(errStr, "state inconsistency") ||
		strings.Contains(errStr, "receipt not found") ||
		strings.Contains(errStr, "block not found") {
		return true, "node_state_error"
	}

	// Gas-related errors - retry may help if gas prices change
	if strings.Contains(errStr, "gas required exceeds allowance") ||
		strings.Contains(errStr, "insufficient funds for gas") ||
		strings.Contains(errStr, "gas price too low") {
		return true, "gas_error"
	}

	// Nonce-related errors - retry may help after nonce is corrected
	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "nonce too high") ||
		strings.Contains(errStr, "replacement transaction underpriced") {
		return true, "nonce_error"
	}

	if strings.Contains(errStr, "insufficient balance") ||
		strings.Contains(errStr, "insufficient allowance") ||
		strings.Contains(errStr, "insufficient funds") {
		return false, "insufficient_balance"
	}

	if strings.Contains(errStr, "execution reverted") ||
		strings.Contains(errStr, "invalid opcode") ||
		strings.Contains(errStr, "out of gas") {
		return false, "contract_error"
	}

	return true, "unknown_error"
}
