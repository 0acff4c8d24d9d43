// Package play drives single play attempts from request to settlement.
package play

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/metrics"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

// DefaultSettlementTimeout bounds the wait for a submitted play.
const DefaultSettlementTimeout = 90 * time.Second

// submitTimeout bounds the submission request itself.
const submitTimeout = 30 * time.Second

// recordTimeout bounds a history write after settlement.
const recordTimeout = 5 * time.Second

// Outcome is the result of one play attempt. Err is set when the play did not settle.
type Outcome struct {
	PlayID      string          `json:"playId,omitempty"`
	Selection   wager.Selection `json:"selection"`
	Wager       float64         `json:"wager"`
	ResultIndex int             `json:"resultIndex"`
	Won         bool            `json:"won"`
	Payout      decimal.Decimal `json:"payout"`
	Err         error           `json:"-"`
}

// Record is a settled play handed to the Recorder.
type Record struct {
	PlayID      string
	Selection   wager.Selection
	Wager       float64
	Lamports    int64
	ResultIndex int
	Won         bool
	Payout      decimal.Decimal
	SettledAt   time.Time
}

// Recorder persists settled plays. Errors are logged and never affect the session.
type Recorder interface {
	RecordPlay(ctx context.Context, rec Record) error
}

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	Recorder          Recorder
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
	SettlementTimeout time.Duration
}

// Orchestrator runs plays against the gateway and folds their results into the
// session machine. At most one play is in flight; the machine's Playing gate is
// what enforces it.
type Orchestrator struct {
	gateway  house.Gateway
	machine  *session.Machine
	recorder Recorder
	metrics  *metrics.Metrics
	log      *zap.Logger

	settlementTimeout time.Duration
	now               func() time.Time

	wg sync.WaitGroup
}

// New creates an orchestrator.
func New(gateway house.Gateway, machine *session.Machine, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = DefaultSettlementTimeout
	}
	return &Orchestrator{
		gateway:           gateway,
		machine:           machine,
		recorder:          opts.Recorder,
		metrics:           opts.Metrics,
		log:               opts.Logger.Named("play"),
		settlementTimeout: opts.SettlementTimeout,
		now:               time.Now,
	}
}

// Submit starts a play on the current wager. It returns once the play has been
// accepted by the session gate; the outcome arrives on the returned channel.
// A refused play returns a session error and changes nothing.
//
// The caller's ctx only covers the pre-play refresh. Once accepted, a play is
// neither cancellable nor abandoned: it runs to settlement or failure.
func (o *Orchestrator) Submit(ctx context.Context, sel wager.Selection) (<-chan Outcome, error) {
	if err := o.machine.State().CheckPlay(sel); err != nil {
		o.metrics.PlayRejected(rejectReason(err))
		return nil, err
	}

	// Max payout can move between rounds; validate against the current figure.
	snap, err := o.gateway.Snapshot(ctx)
	if err != nil {
		o.log.Warn("house refresh before play failed",
			zap.String("selection", string(sel)),
			zap.Error(err))
		return nil, fmt.Errorf("play: refresh house: %w", err)
	}
	if _, eff := o.machine.Dispatch(session.Refreshed{Snapshot: snap, BeforePlay: true}); eff.Kind == session.EffectRejected {
		o.metrics.PlayRejected(rejectReason(eff.Err))
		return nil, eff.Err
	}

	_, eff := o.machine.Dispatch(session.PlayRequested{Selection: sel})
	if eff.Kind != session.EffectSubmitPlay {
		o.metrics.PlayRejected(rejectReason(eff.Err))
		return nil, eff.Err
	}

	o.metrics.InFlight(1)
	out := make(chan Outcome, 1)
	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), eff.Play, out)
	return out, nil
}

// Play is Submit followed by a wait for the outcome. If ctx ends first Play returns
// ctx.Err() while the play carries on in the background.
func (o *Orchestrator) Play(ctx context.Context, sel wager.Selection) (Outcome, error) {
	ch, err := o.Submit(ctx, sel)
	if err != nil {
		return Outcome{Selection: sel, Err: err}, err
	}
	select {
	case out := <-ch:
		return out, out.Err
	case <-ctx.Done():
		return Outcome{Selection: sel}, ctx.Err()
	}
}

// Wait blocks until every accepted play has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, attempt session.Attempt, out chan<- Outcome) {
	defer o.wg.Done()

	finished := false
	finish := func(res Outcome) {
		finished = true
		o.metrics.InFlight(-1)
		out <- res
		close(out)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("play: panic: %v", r)
		if finished {
			o.log.Error("panic after play finished", zap.Error(err))
			return
		}
		finish(o.fail(attempt, "", err))
	}()

	started := o.now()

	lamports, err := wager.ToLamports(attempt.Wager)
	if err != nil {
		finish(o.fail(attempt, "", err))
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	handle, err := o.gateway.Play(submitCtx, attempt.Selection.Weights(), lamports)
	cancel()
	if err != nil {
		finish(o.fail(attempt, "", fmt.Errorf("play: submit: %w", err)))
		return
	}

	o.log.Info("play submitted",
		zap.String("play_id", handle.ID()),
		zap.String("selection", string(attempt.Selection)),
		zap.Float64("wager", attempt.Wager),
		zap.Int64("lamports", lamports))

	awaitCtx, cancel := context.WithTimeout(ctx, o.settlementTimeout)
	settlement, err := handle.Result(awaitCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", house.ErrSettlementTimeout, err)
		}
		finish(o.fail(attempt, handle.ID(), err))
		return
	}
	if settlement.PlayID == "" {
		settlement.PlayID = handle.ID()
	}

	finish(o.settle(ctx, attempt, lamports, settlement, o.now().Sub(started)))
}

func (o *Orchestrator) settle(ctx context.Context, attempt session.Attempt, lamports int64, s house.Settlement, elapsed time.Duration) Outcome {
	o.machine.Dispatch(session.Settled{Settlement: s})

	winner, _ := wager.Outcome(s.ResultIndex)
	res := Outcome{
		PlayID:      s.PlayID,
		Selection:   attempt.Selection,
		Wager:       attempt.Wager,
		ResultIndex: s.ResultIndex,
		Won:         winner == attempt.Selection,
		Payout:      s.Payout,
	}

	o.metrics.PlaySettled(string(attempt.Selection), res.Won, elapsed.Seconds())
	o.log.Info("play settled",
		zap.String("play_id", res.PlayID),
		zap.String("selection", string(res.Selection)),
		zap.Int("result_index", res.ResultIndex),
		zap.Bool("won", res.Won),
		zap.String("payout", res.Payout.String()),
		zap.Duration("elapsed", elapsed))

	if err := o.record(ctx, Record{
		PlayID:      res.PlayID,
		Selection:   res.Selection,
		Wager:       res.Wager,
		Lamports:    lamports,
		ResultIndex: res.ResultIndex,
		Won:         res.Won,
		Payout:      res.Payout,
		SettledAt:   o.now(),
	}); err != nil {
		o.log.Warn("failed to record play", zap.String("play_id", res.PlayID), zap.Error(err))
	}
	return res
}

// record hands rec to the recorder. The play is already settled, so a
// recorder panic is reported as an error like any other write failure.
func (o *Orchestrator) record(ctx context.Context, rec Record) (err error) {
	if o.recorder == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("play: recorder panic: %v", r)
		}
	}()
	rctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	return o.recorder.RecordPlay(rctx, rec)
}

// fail reverts the session out of Playing and reports err.
func (o *Orchestrator) fail(attempt session.Attempt, playID string, err error) Outcome {
	o.machine.Dispatch(session.SettlementFailed{Err: err})

	reason := house.Reason(err)
	o.metrics.PlayFailed(reason)
	o.log.Warn("play failed",
		zap.String("play_id", playID),
		zap.String("selection", string(attempt.Selection)),
		zap.Float64("wager", attempt.Wager),
		zap.String("reason", reason),
		zap.Error(err))

	return Outcome{
		PlayID:    playID,
		Selection: attempt.Selection,
		Wager:     attempt.Wager,
		Err:       err,
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, session.ErrPlayInFlight):
		return "in_flight"
	case errors.Is(err, session.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, session.ErrNoAccount):
		return "no_account"
	case errors.Is(err, session.ErrInvalidWager):
		return "invalid_wager"
	case errors.Is(err, session.ErrInvalidSelection):
		return "invalid_selection"
	default:
		return "other"
	}
}
