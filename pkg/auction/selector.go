// Package auction selects the winning solution for an intent.
//
// Solutions are ordered by amountWei ascending (lower asks win), then by
// createdAt, then by id. The order is total over valid solutions, so any
// process re-running the selection on the same pool reaches the same winner.
package auction

import (
	"errors"
	"math/big"
	"sort"

	"github.com/speedrun-hq/railsettle/pkg/amount"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// ErrNoCandidates is returned when there is no valid solution to select
var ErrNoCandidates = errors.New("no candidate solutions")

type ranked struct {
	solution models.Solution
	amount   *big.Int
}

// both amounts must already be parsed
func less(a, b ranked) bool {
	if c := a.amount.Cmp(b.amount); c != 0 {
		return c < 0
	}
	if !a.solution.CreatedAt.Equal(b.solution.CreatedAt) {
		return a.solution.CreatedAt.Before(b.solution.CreatedAt)
	}
	return a.solution.ID < b.solution.ID
}

func rank(solutions []models.Solution) []ranked {
	out := make([]ranked, 0, len(solutions))
	for _, s := range solutions {
		v, err := amount.Parse(s.AmountWei)
		if err != nil {
			// the ledger never stores these, skip rather than fail the whole pool
			continue
		}
		out = append(out, ranked{solution: s, amount: v})
	}
	return out
}

// Less reports whether solution a ranks strictly before b. Solutions with an
// invalid amount rank after every valid one.
func Less(a, b models.Solution) bool {
	av, aerr := amount.Parse(a.AmountWei)
	bv, berr := amount.Parse(b.AmountWei)
	switch {
	case aerr != nil && berr != nil:
		return a.ID < b.ID
	case aerr != nil:
		return false
	case berr != nil:
		return true
	}
	return less(ranked{solution: a, amount: av}, ranked{solution: b, amount: bv})
}

// SelectWinner returns the best solution of the pool
func SelectWinner(solutions []models.Solution) (models.Solution, error) {
	pool := rank(solutions)
	if len(pool) == 0 {
		return models.Solution{}, ErrNoCandidates
	}
	best := pool[0]
	for _, r := range pool[1:] {
		if less(r, best) {
			best = r
		}
	}
	return best.solution, nil
}

// Sort returns a copy of the pool in auction order, best first
func Sort(solutions []models.Solution) []models.Solution {
	out := make([]models.Solution, len(solutions))
	copy(out, solutions)
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// MinAmount returns the lowest valid amountWei in the pool
func MinAmount(solutions []models.Solution) (string, error) {
	winner, err := SelectWinner(solutions)
	if err != nil {
		return "", err
	}
	return winner.AmountWei, nil
}
