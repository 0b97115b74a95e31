// Package usdc provides shared USDC parsing and formatting utilities.
//
// USDC uses 6 decimal places. All amounts are stored as big.Int in
// the smallest unit (1 USDC = 1,000,000 units).
package usdc

import (
	"math/big"
	"strings"
)

const Decimals = 6

// FeeRateBps is the marketplace fee in basis points (7%).
const FeeRateBps = 700

// Fee computes the 7% marketplace fee on a price in smallest units,
// rounded half up to the nearest unit.
func Fee(price *big.Int) *big.Int {
	if price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(price, big.NewInt(FeeRateBps))
	fee.Add(fee, big.NewInt(5000))
	return fee.Div(fee, big.NewInt(10000))
}

// Total returns price plus the marketplace fee.
func Total(price *big.Int) *big.Int {
	if price == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(price, Fee(price))
}

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (1500000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 6 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") {
		return nil, false
	}

	// Pad or trim the fraction to exactly 6 decimals.
	if len(frac) < Decimals {
		frac += strings.Repeat("0", Decimals-len(frac))
	}
	frac = frac[:Decimals]

	result, ok := new(big.Int).SetString(whole+frac, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string with exactly 6 decimal places (e.g. "1.500000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	if len(s) <= Decimals {
		s = strings.Repeat("0", Decimals+1-len(s)) + s
	}
	cut := len(s) - Decimals
	result := s[:cut] + "." + s[cut:]
	if neg {
		result = "-" + result
	}
	return result
}
