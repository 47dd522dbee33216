// Package amount handles token and rail amounts encoded as unsigned decimal-digit strings.
package amount

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidAmount is returned for anything that is not a plain string of decimal digits
var ErrInvalidAmount = errors.New("invalid amount")

// Parse converts a decimal-digit string into a big.Int.
// Signs, decimal points, whitespace, exponents and the empty string are rejected.
// Leading zeros are accepted; callers keep the original string and compare numerically.
func Parse(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%w: %q contains non-digit character %q", ErrInvalidAmount, s, s[i])
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// MustParse is Parse for constants, it panics on invalid input
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate reports whether s is a valid amount
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// Format renders v as a decimal-digit string
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Compare compares two amount strings numerically, returning -1, 0 or +1
func Compare(a, b string) (int, error) {
	x, err := Parse(a)
	if err != nil {
		return 0, err
	}
	y, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}

// MulBps returns v * bps / 10000, truncated
func MulBps(v *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10000))
}
