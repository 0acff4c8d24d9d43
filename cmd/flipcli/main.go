// Command flipcli plays the coin-flip game from a terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/account"
	"github.com/MJE43/flip-go/internal/app"
	"github.com/MJE43/flip-go/internal/config"
	"github.com/MJE43/flip-go/internal/logging"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

const shutdownTimeout = 10 * time.Second

// Menu entries.
const (
	actConnect    = "Connect"
	actDisconnect = "Disconnect"
	actCreate     = "Create account"
	actWager      = "Set wager"
	actHeads      = "Play heads"
	actTails      = "Play tails"
	actWithdraw   = "Withdraw winnings"
	actClose      = "Close account"
	actRefresh    = "Refresh"
	actHistory    = "Recent plays"
	actStats      = "Statistics"
	actToken      = "Set access token"
	actForget     = "Forget access token"
	actDebug      = "Show raw user record"
	actQuit       = "Quit"
)

func main() {
	if err := run(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrSetupRequired) {
			pterm.Warning.Println(err)
			pterm.DefaultBox.WithTitle("Setup").Println(config.SetupGuide)
		}
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	log, err := logging.NewFile(cfg.LogLevel, filepath.Join(cfg.DataDir, "flipcli.log"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(sctx); err != nil {
			pterm.Warning.Println(err)
		}
	}()

	if err := a.StartLocalAPI(); err != nil {
		pterm.Warning.Printfln("local API not started: %v", err)
	} else if addr := a.LocalAPIAddr(); addr != "" {
		pterm.Info.Printfln("Local API on http://%s", addr)
	}

	pterm.DefaultHeader.WithFullWidth().Println("Flip")
	pterm.Info.Printfln("Gateway %s, creator %s", a.Gateway.Endpoint(), a.Gateway.Creator())
	return loop(ctx, a)
}

func loop(ctx context.Context, a *app.App) error {
	g := a.Game
	for {
		if ctx.Err() != nil {
			return nil
		}
		v := g.View()
		pterm.Println(stateBox(v))

		choice, err := pterm.DefaultInteractiveSelect.
			WithDefaultText("What next?").
			WithOptions(menuFor(v)).
			Show()
		if err != nil {
			return nil
		}

		switch choice {
		case actQuit:
			return nil
		case actConnect:
			report(g.Connect(ctx))
		case actDisconnect:
			report(g.Disconnect(ctx))
		case actCreate:
			report(withSpinner("Creating account...", func() error { return g.CreateAccount(ctx) }))
		case actWithdraw:
			report(withSpinner("Withdrawing...", func() error { return g.Withdraw(ctx) }))
		case actRefresh:
			report(g.Refresh(ctx))
		case actClose:
			report(g.CloseAccount(ctx, account.ConfirmFunc(confirmAction)))
		case actWager:
			promptWager(g.SetWager)
		case actHeads:
			playRound(ctx, a, wager.Heads)
		case actTails:
			playRound(ctx, a, wager.Tails)
		case actHistory:
			showHistory(ctx, a)
		case actStats:
			showStats(ctx, a)
		case actToken:
			promptToken(a)
		case actForget:
			forgetToken(ctx, a)
		case actDebug:
			out, err := g.DebugUser(ctx)
			if report(err) {
				pterm.Println(out)
			}
		}
	}
}

// menuFor lists the actions that make sense in the current phase.
func menuFor(v session.View) []string {
	switch v.Phase {
	case session.PhaseDisconnected:
		return []string{actConnect, actWager, actHistory, actStats, actToken, actForget, actQuit}
	case session.PhaseConnectedNoAccount:
		return []string{actCreate, actWager, actRefresh, actHistory, actStats, actDebug, actDisconnect, actQuit}
	case session.PhasePlaying:
		return []string{actRefresh, actHistory, actStats, actQuit}
	}

	opts := []string{actWager}
	if v.CanPlay {
		opts = append(opts, actHeads, actTails)
	}
	if v.UserBalance.IsPositive() {
		opts = append(opts, actWithdraw)
	}
	return append(opts, actRefresh, actHistory, actStats, actClose, actDebug, actDisconnect, actQuit)
}

func playRound(ctx context.Context, a *app.App, sel wager.Selection) {
	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Flipping for %s...", sel))
	// Play keeps going in the background if ctx ends; a.Close waits for it.
	out, err := a.Game.Play(ctx, sel)
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		spinner.Warning("Interrupted; the play settles in the background")
	case err != nil:
		spinner.Fail(err.Error())
		a.Log.Debug("play failed", zap.Error(err))
	case out.Won:
		spinner.Success(fmt.Sprintf("%s! You won %s SOL", outcomeLabel(out.ResultIndex), out.Payout.String()))
	default:
		spinner.Info(fmt.Sprintf("%s. Better luck next time", outcomeLabel(out.ResultIndex)))
	}
}

func outcomeLabel(resultIndex int) string {
	sel, ok := wager.Outcome(resultIndex)
	if !ok {
		return fmt.Sprintf("Result %d", resultIndex)
	}
	return strings.ToUpper(string(sel[:1])) + string(sel[1:])
}

func promptWager(set func(float64) session.View) {
	in, err := pterm.DefaultInteractiveTextInput.WithDefaultText("Wager in SOL").Show()
	if err != nil {
		return
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
	if err != nil {
		pterm.Error.Printfln("%q is not a number", in)
		return
	}
	if v := set(amount); !v.WagerValid {
		pterm.Warning.Printfln("Wager must be between %.2f and %.2f SOL", v.MinWager, v.MaxWager)
	}
}

func promptToken(a *app.App) {
	token, err := pterm.DefaultInteractiveTextInput.WithDefaultText("Access token").WithMask("*").Show()
	if err != nil || strings.TrimSpace(token) == "" {
		return
	}
	if report(a.SaveAccessToken(strings.TrimSpace(token))) {
		pterm.Success.Println("Token saved to the keychain")
	}
}

func forgetToken(ctx context.Context, a *app.App) {
	ok, err := confirmAction(ctx, "Remove the stored access token from the keychain?")
	if err != nil || !ok {
		return
	}
	if report(a.ForgetAccessToken()) {
		pterm.Success.Println("Token removed")
	}
}

func confirmAction(_ context.Context, prompt string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.
		WithDefaultText(prompt).
		WithDefaultValue(false).
		Show()
}

func withSpinner(text string, fn func() error) error {
	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	err := fn()
	_ = spinner.Stop()
	return err
}

// report prints err and says whether the action succeeded.
func report(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, account.ErrNotConfirmed):
		pterm.Info.Println("Cancelled.")
	default:
		pterm.Error.Println(err)
	}
	return false
}
