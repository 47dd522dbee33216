package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Solution is a solver's bid to fulfill an intent's fiat leg for a stated crypto amount
type Solution struct {
	ID               string           `json:"id"`
	IntentID         string           `json:"intentId"`
	SolverAddress    string           `json:"solverAddress"`
	AmountWei        string           `json:"amountWei"`
	Signature        string           `json:"signature"`
	CreatedAt        time.Time        `json:"createdAt"`
	CommitmentTxHash *string          `json:"commitmentTxHash"`
	SettlementTxHash *string          `json:"settlementTxHash"`
	ResolutionTxHash *string          `json:"resolutionTxHash"`
	PaymentMetadata  *PaymentMetadata `json:"paymentMetadata"`
}

// SolutionCandidate holds the solver-supplied fields of a new solution
type SolutionCandidate struct {
	SolverAddress string `json:"solverAddress"`
	AmountWei     string `json:"amountWei"`
	Signature     string `json:"signature"`
}

// PaymentMetadata is the payer's proof that the rail payment was sent
type PaymentMetadata struct {
	TransactionID    string                 `json:"transactionId"`
	Timestamp        string                 `json:"timestamp"`
	RailSpecificData map[string]interface{} `json:"railSpecificData,omitempty"`
}

// ParsedTimestamp parses the metadata timestamp as RFC 3339
func (m *PaymentMetadata) ParsedTimestamp() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid payment timestamp %q: %w", m.Timestamp, err)
	}
	return ts, nil
}

// Validate checks the minimal claim requirements: a rail transaction id and a parseable timestamp
func (m *PaymentMetadata) Validate() error {
	if m == nil {
		return fmt.Errorf("payment metadata is required")
	}
	if strings.TrimSpace(m.TransactionID) == "" {
		return fmt.Errorf("payment metadata transactionId is required")
	}
	if _, err := m.ParsedTimestamp(); err != nil {
		return err
	}
	return nil
}

// Encode serializes the metadata as stored alongside the solution
func (m *PaymentMetadata) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode payment metadata: %w", err)
	}
	return string(raw), nil
}

// DecodePaymentMetadata parses stored metadata
func DecodePaymentMetadata(raw string) (*PaymentMetadata, error) {
	var m PaymentMetadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode payment metadata: %w", err)
	}
	return &m, nil
}
