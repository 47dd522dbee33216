package models

import "fmt"

// RailType identifies the off-chain settlement rail
type RailType string

const (
	RailUPI     RailType = "UPI"
	RailBitcoin RailType = "BITCOIN"
)

var railCurrencies = map[RailType]string{
	RailUPI:     "INR",
	RailBitcoin: "BTC",
}

var railSmallestUnits = map[RailType]string{
	RailUPI:     "paise",
	RailBitcoin: "sats",
}

// ParseRailType validates a rail name
func ParseRailType(s string) (RailType, error) {
	rail := RailType(s)
	if _, ok := railCurrencies[rail]; !ok {
		return "", fmt.Errorf("unsupported rail type: %q", s)
	}
	return rail, nil
}

// Currency returns the fiat or native currency settled over the rail
func (r RailType) Currency() string {
	return railCurrencies[r]
}

// SmallestUnit returns the name of the unit railAmount is denominated in
func (r RailType) SmallestUnit() string {
	return railSmallestUnits[r]
}
