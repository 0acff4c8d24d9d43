// Package wager holds the coin-flip selections and the rules that decide whether an
// amount can be staked against the house.
package wager

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// DefaultMinWager is the smallest stake accepted when no minimum is configured.
const DefaultMinWager = 0.01

// payoutSafetyDivisor bounds a wager so that a 2x payout cannot exceed the house cap.
const payoutSafetyDivisor = 2

// Selection is one of the outcomes a player can bet on.
type Selection string

const (
	Heads Selection = "heads"
	Tails Selection = "tails"
)

// Selections lists every playable selection in display order.
var Selections = []Selection{Heads, Tails}

var weights = map[Selection][]int{
	Heads: {2, 0},
	Tails: {0, 2},
}

// ParseSelection accepts "heads"/"tails" in any case.
func ParseSelection(s string) (Selection, error) {
	sel := Selection(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := weights[sel]; !ok {
		return "", fmt.Errorf("wager: unknown selection %q", s)
	}
	return sel, nil
}

// Weights returns the payout vector the gateway expects for this selection.
// The returned slice is a copy.
func (s Selection) Weights() []int {
	w, ok := weights[s]
	if !ok {
		return nil
	}
	return append([]int(nil), w...)
}

// Valid reports whether s is a known selection.
func (s Selection) Valid() bool {
	_, ok := weights[s]
	return ok
}

// Outcome returns the selection that won for a settled result index.
func Outcome(resultIndex int) (Selection, bool) {
	if resultIndex < 0 || resultIndex >= len(Selections) {
		return "", false
	}
	return Selections[resultIndex], true
}

// Limits are the bounds a wager is checked against, in SOL.
type Limits struct {
	Min       float64 `json:"min"`
	MaxPayout float64 `json:"maxPayout"`
}

// Max is the largest acceptable wager for these limits.
func (l Limits) Max() float64 {
	return MaxWager(l.MaxPayout)
}

// Allows reports whether w is playable under these limits.
func (l Limits) Allows(w float64) bool {
	return IsValid(w, l.Min, l.Max())
}

// MaxWager halves the house's maximum payout.
func MaxWager(maxPayout float64) float64 {
	return maxPayout / payoutSafetyDivisor
}

// IsValid reports whether wager is finite and within [minWager, maxWager].
func IsValid(wager, minWager, maxWager float64) bool {
	if math.IsNaN(wager) || math.IsInf(wager, 0) {
		return false
	}
	return wager >= minWager && wager <= maxWager
}

// ToLamports converts a SOL amount to lamports. Fractions of a lamport are rounded
// half away from zero.
func ToLamports(sol float64) (int64, error) {
	if math.IsNaN(sol) || math.IsInf(sol, 0) {
		return 0, fmt.Errorf("wager: amount %v is not finite", sol)
	}
	if sol < 0 {
		return 0, fmt.Errorf("wager: amount %v is negative", sol)
	}
	l := decimal.NewFromFloat(sol).Mul(decimal.NewFromInt(LamportsPerSOL)).Round(0)
	if !l.IsInteger() || l.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("wager: amount %v out of range", sol)
	}
	return l.IntPart(), nil
}

// FromLamports converts lamports to SOL.
func FromLamports(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -9)
}
