package main

import (
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

func TestMenuFollowsPhase(t *testing.T) {
	tests := []struct {
		name    string
		view    session.View
		want    []string
		notWant []string
	}{
		{
			name:    "disconnected",
			view:    session.View{Phase: session.PhaseDisconnected},
			want:    []string{actConnect, actToken, actForget, actStats},
			notWant: []string{actHeads, actCreate, actDisconnect},
		},
		{
			name:    "no account",
			view:    session.View{Phase: session.PhaseConnectedNoAccount},
			want:    []string{actCreate, actDisconnect},
			notWant: []string{actHeads, actClose, actWithdraw},
		},
		{
			name:    "ready and playable",
			view:    session.View{Phase: session.PhaseReady, CanPlay: true},
			want:    []string{actHeads, actTails, actClose},
			notWant: []string{actWithdraw, actConnect},
		},
		{
			name:    "ready with invalid wager",
			view:    session.View{Phase: session.PhaseReady},
			want:    []string{actWager},
			notWant: []string{actHeads, actTails},
		},
		{
			name:    "winnings to claim",
			view:    session.View{Phase: session.PhaseReady, UserBalance: decimal.NewFromFloat(0.5)},
			want:    []string{actWithdraw},
		},
		{
			name:    "playing",
			view:    session.View{Phase: session.PhasePlaying},
			want:    []string{actQuit},
			notWant: []string{actHeads, actTails, actWager, actClose, actDisconnect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := menuFor(tt.view)
			for _, w := range tt.want {
				if !slices.Contains(got, w) {
					t.Errorf("missing %q in %v", w, got)
				}
			}
			for _, w := range tt.notWant {
				if slices.Contains(got, w) {
					t.Errorf("unexpected %q in %v", w, got)
				}
			}
		})
	}
}

func TestOutcomeLabel(t *testing.T) {
	if got := outcomeLabel(0); got != "Heads" {
		t.Errorf("outcomeLabel(0) = %q", got)
	}
	if got := outcomeLabel(1); got != "Tails" {
		t.Errorf("outcomeLabel(1) = %q", got)
	}
	if got := outcomeLabel(7); got != "Result 7" {
		t.Errorf("outcomeLabel(7) = %q", got)
	}
}

func TestPlaysTable(t *testing.T) {
	data := playsTable([]history.Play{{
		Selection:   wager.Tails,
		Wager:       0.25,
		ResultIndex: 1,
		Won:         true,
		Payout:      decimal.NewFromFloat(0.5),
		SettledAt:   time.Now(),
	}})
	if len(data) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(data))
	}
	if data[1][1] != "tails" || data[1][2] != "0.2500" || data[1][4] != "0.5000" {
		t.Errorf("unexpected row %v", data[1])
	}
}

func TestSummaryTable(t *testing.T) {
	data := summaryTable(history.Summary{
		Plays: 3, Wins: 1, Losses: 2, Wagered: 0.75, PaidOut: decimal.NewFromFloat(0.5),
	})
	if len(data) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(data))
	}
	want := []string{"3", "1", "2", "0.7500", "0.5000"}
	if !slices.Equal(data[1], want) {
		t.Errorf("row = %v, want %v", data[1], want)
	}
}
