// Package chain talks to the ZKRail settlement contract.
//
// The protocol core only sees the Collaborator interface: commit a winning
// solution (locking the solver's bond), settle, resolve with a proof or after
// the emergency timeout, and read the total amount to approve. Every call
// either returns the hash of a mined, successful transaction or a *Error.
package chain

import (
	"context"
	"math/big"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Collaborator is the narrow contract interface used by the coordinators
type Collaborator interface {
	// ChainID returns the chain the collaborator sends transactions to
	ChainID() int

	// Commit submits the solution and its signature, locking the solver's bond
	Commit(ctx context.Context, intent models.Intent, solution models.Solution) (string, error)

	// Settle releases the bond after the solver confirmed receipt of the rail payment
	Settle(ctx context.Context, intentID string) (string, error)

	// ResolveWithProof resolves a disputed intent with a proof of payment
	ResolveWithProof(ctx context.Context, intentID string, proof []byte) (string, error)

	// EmergencyResolve resolves an intent whose solver did not act within the timeout
	EmergencyResolve(ctx context.Context, intentID string) (string, error)

	// CalculateTotalAmount returns payment plus bond for a payment amount
	CalculateTotalAmount(ctx context.Context, paymentAmount *big.Int) (*big.Int, error)

	// VerifyTransaction checks that a transaction was mined and succeeded
	VerifyTransaction(ctx context.Context, txHash string) error
}
