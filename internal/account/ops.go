// Package account wraps the gateway's wallet and account lifecycle calls and
// folds their results into the session machine.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/metrics"
	"github.com/MJE43/flip-go/internal/session"
)

// ClosePrompt is the question put to the user before an account is closed.
const ClosePrompt = "Closing your house account forfeits any unclaimed balance. This cannot be undone. Close it?"

// ErrNotConfirmed is returned when the user did not confirm a destructive operation.
var ErrNotConfirmed = errors.New("account: not confirmed")

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Operation names used in logs, metrics and failure events.
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpCreate     = "create_account"
	OpWithdraw   = "withdraw"
	OpClose      = "close_account"
	OpRefresh    = "refresh"
)

// Ops runs account lifecycle operations. Each checks the session first, calls the
// gateway once and dispatches the outcome. Failures leave the session as it was.
type Ops struct {
	gateway house.Gateway
	machine *session.Machine
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates the lifecycle operations.
func New(gateway house.Gateway, machine *session.Machine, m *metrics.Metrics, logger *zap.Logger) *Ops {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ops{
		gateway: gateway,
		machine: machine,
		metrics: m,
		log:     logger.Named("account"),
	}
}

// Connect opens the wallet session. The gateway decides whether the identity
// already has an account.
func (o *Ops) Connect(ctx context.Context) error {
	if err := o.machine.State().CheckConnect(); err != nil {
		return err
	}
	snap, err := o.gateway.Connect(ctx)
	if err != nil {
		return o.failed(OpConnect, err)
	}
	o.done(OpConnect, session.ConnectSucceeded{Snapshot: snap})
	return nil
}

// Disconnect closes the wallet session. It is a no-op when already disconnected.
// A play in flight keeps running and still settles into the session.
func (o *Ops) Disconnect(ctx context.Context) error {
	if o.machine.State().Connection != session.Connected {
		return nil
	}
	if err := o.gateway.Disconnect(ctx); err != nil {
		return o.failed(OpDisconnect, err)
	}
	o.done(OpDisconnect, session.DisconnectSucceeded{})
	return nil
}

// CreateAccount creates the house account for the connected identity.
func (o *Ops) CreateAccount(ctx context.Context) error {
	if err := o.machine.State().CheckCreateAccount(); err != nil {
		return err
	}
	snap, err := o.gateway.CreateAccount(ctx)
	if err != nil {
		return o.failed(OpCreate, err)
	}
	o.done(OpCreate, session.AccountCreateSucceeded{Snapshot: snap})
	return nil
}

// Withdraw claims the unclaimed user balance into the wallet.
func (o *Ops) Withdraw(ctx context.Context) error {
	if err := o.machine.State().CheckWithdraw(); err != nil {
		return err
	}
	snap, err := o.gateway.Withdraw(ctx)
	if err != nil {
		return o.failed(OpWithdraw, err)
	}
	o.done(OpWithdraw, session.Withdrawn{Snapshot: snap})
	return nil
}

// CloseAccount closes the house account after the user confirms. Any unclaimed
// balance is lost, so without a yes from confirm nothing is sent.
func (o *Ops) CloseAccount(ctx context.Context, confirm Confirmer) error {
	if err := o.machine.State().CheckClose(); err != nil {
		return err
	}
	if confirm == nil {
		return ErrNotConfirmed
	}
	ok, err := confirm.Confirm(ctx, ClosePrompt)
	if err != nil {
		return fmt.Errorf("account: confirm close: %w", err)
	}
	if !ok {
		o.log.Info("account close cancelled by user")
		return ErrNotConfirmed
	}

	snap, err := o.gateway.CloseAccount(ctx)
	if err != nil {
		return o.failed(OpClose, err)
	}
	o.done(OpClose, session.AccountClosed{Snapshot: snap})
	return nil
}

// Refresh re-reads the house, user and wallet state.
func (o *Ops) Refresh(ctx context.Context) error {
	if o.machine.State().Connection != session.Connected {
		return session.ErrNotConnected
	}
	snap, err := o.gateway.Snapshot(ctx)
	if err != nil {
		return o.failed(OpRefresh, err)
	}
	o.machine.Dispatch(session.Refreshed{Snapshot: snap})
	return nil
}

// DebugUser returns the gateway's current user record as indented JSON.
func (o *Ops) DebugUser(ctx context.Context) (string, error) {
	if o.machine.State().Connection != session.Connected {
		return "", session.ErrNotConnected
	}
	snap, err := o.gateway.Snapshot(ctx)
	if err != nil {
		return "", o.failed(OpRefresh, err)
	}
	o.machine.Dispatch(session.Refreshed{Snapshot: snap})

	raw, err := json.MarshalIndent(snap.User, "", "  ")
	if err != nil {
		return "", fmt.Errorf("account: encode user: %w", err)
	}
	return string(raw), nil
}

func (o *Ops) done(op string, ev session.Event) {
	st, eff := o.machine.Dispatch(ev)
	o.metrics.AccountOp(op, nil)
	if eff.Kind == session.EffectRejected {
		// The session moved on while the call was out, e.g. a disconnect.
		o.log.Warn("operation result discarded", zap.String("op", op), zap.Error(eff.Err))
		return
	}
	o.log.Info("operation succeeded", zap.String("op", op), zap.String("phase", string(st.Phase())))
}

func (o *Ops) failed(op string, err error) error {
	o.machine.Dispatch(session.OperationFailed{Op: op, Err: err})
	o.metrics.AccountOp(op, err)
	o.log.Warn("operation failed",
		zap.String("op", op),
		zap.String("reason", house.Reason(err)),
		zap.Error(err))
	return fmt.Errorf("account: %s: %w", op, err)
}
