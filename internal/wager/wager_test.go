package wager

import (
	"math"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		wager float64
		min   float64
		max   float64
		want  bool
	}{
		{"boundary low", 0.01, 0.01, MaxWager(10), true},
		{"boundary high", 5, 0.01, MaxWager(10), true},
		{"inside", 1.5, 0.01, MaxWager(10), true},
		{"above half max payout", 5.01, 0.01, MaxWager(10), false},
		{"below min", 0.009, 0.01, MaxWager(10), false},
		{"negative", -1, 0.01, MaxWager(10), false},
		{"nan", math.NaN(), 0.01, MaxWager(10), false},
		{"positive inf", math.Inf(1), 0.01, MaxWager(10), false},
		{"negative inf", math.Inf(-1), 0.01, MaxWager(10), false},
		{"house cannot cover min", 0.01, 0.01, MaxWager(0.01), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.wager, tt.min, tt.max); got != tt.want {
				t.Errorf("IsValid(%v, %v, %v) = %v, want %v", tt.wager, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestLimitsAllows(t *testing.T) {
	l := Limits{Min: 0.01, MaxPayout: 10}
	if l.Max() != 5 {
		t.Fatalf("Max() = %v, want 5", l.Max())
	}
	if !l.Allows(0.01) {
		t.Error("expected 0.01 to be allowed")
	}
	if l.Allows(5.01) {
		t.Error("expected 5.01 to be rejected")
	}

	var zero Limits
	if zero.Allows(0.5) {
		t.Error("zero limits (no house snapshot) must reject every positive wager")
	}
}

func TestSelectionWeights(t *testing.T) {
	if got := Heads.Weights(); len(got) != 2 || got[0] != 2 || got[1] != 0 {
		t.Errorf("Heads.Weights() = %v", got)
	}
	if got := Tails.Weights(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("Tails.Weights() = %v", got)
	}

	w := Heads.Weights()
	w[0] = 99
	if Heads.Weights()[0] != 2 {
		t.Error("Weights must return a copy")
	}

	if Selection("edge").Weights() != nil {
		t.Error("unknown selection should have no weights")
	}
}

func TestParseSelection(t *testing.T) {
	for _, in := range []string{"heads", "HEADS", " Heads "} {
		sel, err := ParseSelection(in)
		if err != nil || sel != Heads {
			t.Errorf("ParseSelection(%q) = %q, %v", in, sel, err)
		}
	}
	if _, err := ParseSelection("edge"); err == nil {
		t.Error("expected error for unknown selection")
	}
}

func TestOutcome(t *testing.T) {
	if sel, ok := Outcome(0); !ok || sel != Heads {
		t.Errorf("Outcome(0) = %q, %v", sel, ok)
	}
	if sel, ok := Outcome(1); !ok || sel != Tails {
		t.Errorf("Outcome(1) = %q, %v", sel, ok)
	}
	if _, ok := Outcome(2); ok {
		t.Error("Outcome(2) should be out of range")
	}
}

func TestToLamports(t *testing.T) {
	tests := []struct {
		sol  float64
		want int64
	}{
		{0.01, 10_000_000},
		{1, 1_000_000_000},
		{0.1 + 0.2, 300_000_000},
		{0.000000001, 1},
	}
	for _, tt := range tests {
		got, err := ToLamports(tt.sol)
		if err != nil {
			t.Fatalf("ToLamports(%v): %v", tt.sol, err)
		}
		if got != tt.want {
			t.Errorf("ToLamports(%v) = %d, want %d", tt.sol, got, tt.want)
		}
	}

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := ToLamports(bad); err == nil {
			t.Errorf("ToLamports(%v): expected error", bad)
		}
	}
}

func TestFromLamports(t *testing.T) {
	if got := FromLamports(1_500_000_000).String(); got != "1.5" {
		t.Errorf("FromLamports = %s, want 1.5", got)
	}
}
