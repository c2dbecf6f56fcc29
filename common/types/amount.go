package types

import (
	"fmt"
	"math/big"
)

// ParseAmount parses a non-negative decimal integer. Amounts travel as
// decimal strings so that arbitrary precision survives JSON and storage.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) *big.Int {
	v, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return v
}

// AmountString renders nil as zero.
func AmountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// CopyAmount returns a fresh copy, mapping nil to zero.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// SplitPercent splits total into (share, rest) where share is
// floor(total*percent/100).
func SplitPercent(total *big.Int, percent uint64) (*big.Int, *big.Int) {
	share := new(big.Int).Mul(total, new(big.Int).SetUint64(percent))
	share.Quo(share, big.NewInt(100))
	rest := new(big.Int).Sub(total, share)
	return share, rest
}
