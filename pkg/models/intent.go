package models

import (
	"fmt"
	"time"
)

// IntentState is the lifecycle state of an intent
type IntentState string

const (
	StateCreated           IntentState = "CREATED"
	StateSolutionCommitted IntentState = "SOLUTION_COMMITTED"
	StatePaymentClaimed    IntentState = "PAYMENT_CLAIMED"
	StateSettled           IntentState = "SETTLED"
	StateResolved          IntentState = "RESOLVED"
)

// transitions lists the allowed successor states of each state.
// PAYMENT_CLAIMED forks into SETTLED (optimistic) or RESOLVED (dispute).
var transitions = map[IntentState][]IntentState{
	StateCreated:           {StateSolutionCommitted},
	StateSolutionCommitted: {StatePaymentClaimed},
	StatePaymentClaimed:    {StateSettled, StateResolved},
}

// ParseIntentState parses a state name
func ParseIntentState(s string) (IntentState, error) {
	switch state := IntentState(s); state {
	case StateCreated, StateSolutionCommitted, StatePaymentClaimed, StateSettled, StateResolved:
		return state, nil
	}
	return "", fmt.Errorf("unknown intent state: %q", s)
}

// IsTerminal returns true for SETTLED and RESOLVED
func (s IntentState) IsTerminal() bool {
	return s == StateSettled || s == StateResolved
}

// CanTransition returns true if to directly follows s in the state graph
func (s IntentState) CanTransition(to IntentState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Rank returns the position of the state along the lifecycle, terminal states share the last rank
func (s IntentState) Rank() int {
	switch s {
	case StateCreated:
		return 0
	case StateSolutionCommitted:
		return 1
	case StatePaymentClaimed:
		return 2
	case StateSettled, StateResolved:
		return 3
	}
	return -1
}

// Intent is a request to pay a fiat-rail recipient, settled on-chain in a token
type Intent struct {
	ID                 string      `json:"id"`
	PaymentToken       string      `json:"paymentToken"`
	PaymentTokenAmount string      `json:"paymentTokenAmount"`
	RailType           RailType    `json:"railType"`
	RecipientAddress   string      `json:"recipientAddress"`
	RailAmount         string      `json:"railAmount"`
	CreatorAddress     string      `json:"creatorAddress"`
	ChainID            int         `json:"chainId"`
	CreatedAt          time.Time   `json:"createdAt"`
	State              IntentState `json:"state"`
	WinningSolutionID  *string     `json:"winningSolutionId"`
	ResolutionTxHash   *string     `json:"resolutionTxHash"`
	ClaimedAt          *time.Time  `json:"claimedAt,omitempty"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// IntentSpec holds the creator-supplied fields of a new intent
type IntentSpec struct {
	PaymentToken       string   `json:"paymentToken"`
	PaymentTokenAmount string   `json:"paymentTokenAmount"`
	RailType           RailType `json:"railType"`
	RecipientAddress   string   `json:"recipientAddress"`
	RailAmount         string   `json:"railAmount"`
	CreatorAddress     string   `json:"creatorAddress"`
	ChainID            int      `json:"chainId"`
}

// IntentWithSolution is an intent with its winning solution embedded, as served by list endpoints
type IntentWithSolution struct {
	Intent
	WinningSolution *Solution `json:"winningSolution"`
}

// TransitionEvent describes a state change that has been committed to the ledger
type TransitionEvent struct {
	IntentID   string      `json:"intentId"`
	SolutionID string      `json:"solutionId,omitempty"`
	From       IntentState `json:"from"`
	To         IntentState `json:"to"`
	TxHash     string      `json:"txHash,omitempty"`
	At         time.Time   `json:"at"`
}
