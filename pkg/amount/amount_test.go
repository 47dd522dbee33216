package amount

import (
	"math/big"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "zero", input: "0", want: "0"},
		{name: "small", input: "10000", want: "10000"},
		{name: "beyond uint64", input: "100000000000000000000", want: "100000000000000000000"},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-1", wantErr: true},
		{name: "plus sign", input: "+1", wantErr: true},
		{name: "decimal point", input: "1.5", wantErr: true},
		{name: "exponent", input: "1e18", wantErr: true},
		{name: "whitespace", input: " 12", wantErr: true},
		{name: "hex", input: "0x10", wantErr: true},
		{name: "leading zeros", input: "007", want: "7"},
		{name: "all zeros", input: "000", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(v))
		})
	}
}

func TestCompare(t *testing.T) {
	c, err := Compare("99999999999999999999", "100000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare("250", "250")
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = Compare("0250", "250")
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	_, err = Compare("1.0", "1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMulBps(t *testing.T) {
	assert.Equal(t, "100", Format(MulBps(big.NewInt(1000), 1000)))
	assert.Equal(t, "0", Format(MulBps(big.NewInt(9), 1000)))
	assert.Equal(t, "10000000000000000000", Format(MulBps(MustParse("100000000000000000000"), 1000)))
}

var junkChars = []string{".", "-", "+", "a", "e", " "}

func TestAmountProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	digits := gen.SliceOf(gen.NumChar()).Map(func(cs []rune) string {
		s := string(cs)
		for len(s) > 1 && s[0] == '0' {
			s = s[1:]
		}
		if s == "" {
			return "0"
		}
		return s
	})

	properties.Property("parse then format is the identity", prop.ForAll(
		func(s string) bool {
			v, err := Parse(s)
			return err == nil && Format(v) == s
		},
		digits,
	))

	properties.Property("leading zeros do not change the value", prop.ForAll(
		func(s string, zeros int) bool {
			c, err := Compare(strings.Repeat("0", zeros)+s, s)
			return err == nil && c == 0
		},
		digits,
		gen.IntRange(0, 5),
	))

	properties.Property("strings with a sign, dot or letter are rejected", prop.ForAll(
		func(s string, junk string) bool {
			_, err := Parse(s + junk)
			return err != nil
		},
		digits,
		gen.IntRange(0, len(junkChars)-1).Map(func(i int) string { return junkChars[i] }),
	))

	properties.TestingRun(t)
}
