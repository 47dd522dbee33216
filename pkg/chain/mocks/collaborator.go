package mocks

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/speedrun-hq/railsettle/pkg/chain"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Call records one invocation of the mock
type Call struct {
	Op         string
	IntentID   string
	SolutionID string
	Proof      []byte
}

// Collaborator is a programmable in-memory chain.Collaborator.
// Errors set in the *Err fields are returned wrapped as chain errors.
type Collaborator struct {
	mu sync.Mutex

	ID      int
	BondBps int64
	// ReadOnly makes every write fail with chain.ErrReadOnly, like a client without a key
	ReadOnly bool

	CommitErr           error
	SettleErr           error
	ResolveErr          error
	EmergencyResolveErr error
	VerifyErr           error

	// CommitHook runs inside Commit before the hash is returned, used to interleave concurrent callers
	CommitHook func(intent models.Intent, solution models.Solution)

	Calls   []Call
	counter int
}

var _ chain.Collaborator = (*Collaborator)(nil)

// NewCollaborator creates a mock on Base Sepolia with a 10% bond
func NewCollaborator() *Collaborator {
	return &Collaborator{ID: 84532, BondBps: 1000}
}

func (m *Collaborator) record(call Call, callErr error) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadOnly && call.Op != "verifyTransaction" {
		callErr = chain.ErrReadOnly
	}
	m.Calls = append(m.Calls, call)
	if errors.Is(callErr, chain.ErrInvalidTxHash) {
		return "", callErr
	}
	if callErr != nil {
		return "", chain.NewError(call.Op, call.IntentID, callErr)
	}
	m.counter++
	return fmt.Sprintf("0x%064x", m.counter), nil
}

// CallsFor returns the recorded calls of one operation
func (m *Collaborator) CallsFor(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *Collaborator) ChainID() int {
	return m.ID
}

func (m *Collaborator) Commit(_ context.Context, intent models.Intent, solution models.Solution) (string, error) {
	if m.CommitHook != nil {
		m.CommitHook(intent, solution)
	}
	return m.record(Call{Op: "commit", IntentID: intent.ID, SolutionID: solution.ID}, m.CommitErr)
}

func (m *Collaborator) Settle(_ context.Context, intentID string) (string, error) {
	return m.record(Call{Op: "settle", IntentID: intentID}, m.SettleErr)
}

func (m *Collaborator) ResolveWithProof(_ context.Context, intentID string, proof []byte) (string, error) {
	return m.record(Call{Op: "resolveWithProof", IntentID: intentID, Proof: proof}, m.ResolveErr)
}

func (m *Collaborator) EmergencyResolve(_ context.Context, intentID string) (string, error) {
	return m.record(Call{Op: "emergencyResolve", IntentID: intentID}, m.EmergencyResolveErr)
}

func (m *Collaborator) CalculateTotalAmount(_ context.Context, paymentAmount *big.Int) (*big.Int, error) {
	bond := new(big.Int).Mul(paymentAmount, big.NewInt(m.BondBps))
	bond.Quo(bond, big.NewInt(10000))
	return new(big.Int).Add(paymentAmount, bond), nil
}

func (m *Collaborator) VerifyTransaction(_ context.Context, txHash string) error {
	_, err := m.record(Call{Op: "verifyTransaction", IntentID: txHash}, m.VerifyErr)
	return err
}
