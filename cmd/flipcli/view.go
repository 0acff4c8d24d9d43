package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/pterm/pterm"

	"github.com/MJE43/flip-go/internal/app"
	"github.com/MJE43/flip-go/internal/game"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/session"
)

const historyLimit = 15

func stateBox(v session.View) string {
	wagerLine := fmt.Sprintf("%.4f SOL", v.Wager)
	if !v.WagerValid {
		wagerLine = pterm.LightRed(wagerLine + " (outside limits)")
	}

	last := "-"
	if v.LastOutcome != "" {
		last = outcomeLabel(*v.LastResult)
	}
	if v.Play == session.Playing {
		last = pterm.LightCyan("flipping...")
	}

	body := pterm.Sprintfln("Phase:    %s", pterm.LightCyan(string(v.Phase))) +
		pterm.Sprintfln("Wager:    %s  [%.2f .. %.2f]", wagerLine, v.MinWager, v.MaxWager) +
		pterm.Sprintfln("Last:     %s", last) +
		pterm.Sprintfln("Winnings: %s SOL", v.UserBalance.StringFixed(4)) +
		pterm.Sprintf("Wallet:   %s SOL", v.WalletBalance.StringFixed(4))

	return pterm.DefaultBox.
		WithTitle(pterm.LightYellow("|SESSION|")).
		WithTitleTopCenter().
		WithHorizontalPadding(2).
		Sprint(body)
}

func playsTable(plays []history.Play) pterm.TableData {
	data := pterm.TableData{{"Settled", "Pick", "Wager", "Result", "Payout"}}
	for _, p := range plays {
		res := pterm.LightRed("lost")
		if p.Won {
			res = pterm.LightGreen("won")
		}
		data = append(data, []string{
			p.SettledAt.Local().Format("Jan 02 15:04:05"),
			string(p.Selection),
			fmt.Sprintf("%.4f", p.Wager),
			fmt.Sprintf("%s (%s)", outcomeLabel(p.ResultIndex), res),
			p.Payout.StringFixed(4),
		})
	}
	return data
}

func showHistory(ctx context.Context, a *app.App) {
	plays, err := a.Game.RecentPlays(ctx, historyLimit)
	if !report(err) {
		return
	}
	if len(plays) == 0 {
		pterm.Info.Println("No plays yet.")
		return
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(playsTable(plays)).Render()
}

func summaryTable(sum history.Summary) pterm.TableData {
	return pterm.TableData{
		{"Plays", "Won", "Lost", "Wagered", "Paid out"},
		{
			fmt.Sprint(sum.Plays),
			fmt.Sprint(sum.Wins),
			fmt.Sprint(sum.Losses),
			fmt.Sprintf("%.4f", sum.Wagered),
			sum.PaidOut.StringFixed(4),
		},
	}
}

func showStats(ctx context.Context, a *app.App) {
	sum, err := a.Game.Summary(ctx)
	if !report(err) {
		return
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(summaryTable(sum)).Render()

	page, err := a.Game.SessionPlays(ctx, "", 1, historyLimit)
	if errors.Is(err, game.ErrNoHistory) {
		return
	}
	if !report(err) {
		return
	}
	pterm.Info.Printfln("This session: %d plays", page.TotalCount)
	if len(page.Plays) > 0 {
		_ = pterm.DefaultTable.WithHasHeader().WithData(playsTable(page.Plays)).Render()
	}
}
