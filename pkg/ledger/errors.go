package ledger

import (
	"errors"
	"fmt"

	"github.com/speedrun-hq/railsettle/pkg/models"
)

var (
	// ErrNotFound is returned for an unknown intent or solution id
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed amounts, addresses or metadata
	ErrInvalidInput = errors.New("invalid input")
	// ErrStaleTransition is returned when the intent is no longer in the expected prior state
	ErrStaleTransition = errors.New("stale transition")
	// ErrInvalidState is returned when a transition is not allowed from the intent's state
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyResolved is returned when resolving an intent that is already RESOLVED
	ErrAlreadyResolved = errors.New("intent already resolved")
	// ErrForbidden is returned when the caller is not the party allowed to perform the transition
	ErrForbidden = errors.New("forbidden")

	ErrUnknownIntent         = fmt.Errorf("unknown intent: %w", ErrNotFound)
	ErrInvalidAmount         = fmt.Errorf("invalid amount: %w", ErrInvalidInput)
	ErrInvalidProofOfPayment = fmt.Errorf("invalid proof of payment: %w", ErrInvalidInput)
)

// TransitionError carries the context of a failed state transition
type TransitionError struct {
	IntentID string
	From     models.IntentState
	To       models.IntentState
	// Current is the state observed when the transition was rejected, if known
	Current models.IntentState
	Err     error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("intent %s: transition %s -> %s", e.IntentID, e.From, e.To)
	if e.Current != "" {
		msg += fmt.Sprintf(" (current state %s)", e.Current)
	}
	return msg + ": " + e.Err.Error()
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
