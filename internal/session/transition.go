package session

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/wager"
)

// Event is an input to the state machine.
type Event interface {
	event()
}

// ConnectSucceeded reports an opened wallet session and the state the gateway saw.
type ConnectSucceeded struct{ Snapshot house.Snapshot }

// DisconnectSucceeded reports that the wallet session was closed.
type DisconnectSucceeded struct{}

// AccountCreateSucceeded reports a successful account creation.
type AccountCreateSucceeded struct{ Snapshot house.Snapshot }

// AccountClosed reports a successful account close.
type AccountClosed struct{ Snapshot house.Snapshot }

// Withdrawn reports a successful claim of the user balance.
type Withdrawn struct{ Snapshot house.Snapshot }

// Refreshed carries a fresh gateway snapshot. A refresh taken ahead of a play
// sets BeforePlay and is refused while another play is in flight.
type Refreshed struct {
	Snapshot   house.Snapshot
	BeforePlay bool
}

// OperationFailed reports a failed account lifecycle call. State is left as it was.
type OperationFailed struct {
	Op  string
	Err error
}

// WagerChanged sets the amount for the next play.
type WagerChanged struct{ Amount float64 }

// PlayRequested asks to start a play on the current wager.
type PlayRequested struct{ Selection wager.Selection }

// Settled delivers the outcome of the in-flight play.
type Settled struct{ Settlement house.Settlement }

// SettlementFailed reports that the in-flight play did not settle.
type SettlementFailed struct{ Err error }

func (ConnectSucceeded) event()       {}
func (DisconnectSucceeded) event()    {}
func (AccountCreateSucceeded) event() {}
func (AccountClosed) event()          {}
func (Withdrawn) event()              {}
func (Refreshed) event()              {}
func (OperationFailed) event()        {}
func (WagerChanged) event()           {}
func (PlayRequested) event()          {}
func (Settled) event()                {}
func (SettlementFailed) event()       {}

// EffectKind says what the caller must do after a transition.
type EffectKind int

const (
	// EffectNone: nothing to do.
	EffectNone EffectKind = iota
	// EffectSubmitPlay: submit Effect.Play to the gateway.
	EffectSubmitPlay
	// EffectReportFailure: a call failed; report Effect.Err.
	EffectReportFailure
	// EffectRejected: the event was refused and state is unchanged.
	EffectRejected
)

func (k EffectKind) String() string {
	switch k {
	case EffectSubmitPlay:
		return "submit_play"
	case EffectReportFailure:
		return "report_failure"
	case EffectRejected:
		return "rejected"
	default:
		return "none"
	}
}

// Effect is the side effect requested by a transition.
type Effect struct {
	Kind EffectKind
	Play Attempt
	Op   string
	Err  error
}

func reject(s State, err error) (State, Effect) {
	return s, Effect{Kind: EffectRejected, Err: err}
}

// Apply computes the state that follows s after ev. It never mutates s.
func Apply(s State, ev Event) (State, Effect) {
	switch e := ev.(type) {
	case ConnectSucceeded:
		s.Connection = Connected
		return s.applySnapshot(e.Snapshot), Effect{}

	case DisconnectSucceeded:
		s.Connection = Disconnected
		s.Account = AccountNotCreated
		s.UserStatus = house.UserStatusNone
		s.UserBalance = decimal.Zero
		s.WalletBalance = decimal.Zero
		return s, Effect{}

	case AccountCreateSucceeded, AccountClosed, Withdrawn:
		if s.Connection != Connected {
			return reject(s, ErrNotConnected)
		}
		return s.applySnapshot(snapshotOf(e)), Effect{}

	case Refreshed:
		if s.Connection != Connected {
			return reject(s, ErrNotConnected)
		}
		if e.BeforePlay && s.Play == Playing {
			return reject(s, ErrPlayInFlight)
		}
		if !e.Snapshot.Connected {
			return Apply(s, DisconnectSucceeded{})
		}
		return s.applySnapshot(e.Snapshot), Effect{}

	case OperationFailed:
		return s, Effect{Kind: EffectReportFailure, Op: e.Op, Err: e.Err}

	case WagerChanged:
		s.Wager = e.Amount
		return s, Effect{}

	case PlayRequested:
		if err := s.CheckPlay(e.Selection); err != nil {
			return reject(s, err)
		}
		attempt := Attempt{Selection: e.Selection, Wager: s.Wager}
		s.prevResult = s.LastResult
		s.LastResult = nil
		s.Play = Playing
		s.InFlight = &attempt
		return s, Effect{Kind: EffectSubmitPlay, Play: attempt}

	case Settled:
		if s.Play != Playing {
			return reject(s, ErrNoPlayInFlight)
		}
		s.LastResult = intPtr(e.Settlement.ResultIndex)
		s.prevResult = nil
		s.Play = Idle
		s.InFlight = nil
		return s, Effect{}

	case SettlementFailed:
		if s.Play != Playing {
			return reject(s, ErrNoPlayInFlight)
		}
		s.LastResult = s.prevResult
		s.prevResult = nil
		s.Play = Idle
		s.InFlight = nil
		return s, Effect{Kind: EffectReportFailure, Op: "play", Err: e.Err}
	}
	return s, Effect{}
}

func snapshotOf(ev Event) house.Snapshot {
	switch e := ev.(type) {
	case AccountCreateSucceeded:
		return e.Snapshot
	case AccountClosed:
		return e.Snapshot
	case Withdrawn:
		return e.Snapshot
	}
	return house.Snapshot{}
}

// CheckPlay returns the reason a play on sel cannot start, or nil.
func (s State) CheckPlay(sel wager.Selection) error {
	switch {
	case s.Play == Playing:
		return ErrPlayInFlight
	case s.Connection != Connected:
		return ErrNotConnected
	case s.Account != AccountCreated:
		return ErrNoAccount
	case !sel.Valid():
		return ErrInvalidSelection
	case !s.WagerValid():
		return ErrInvalidWager
	}
	return nil
}

// CheckConnect returns ErrAlreadyConnected when a wallet session is open.
func (s State) CheckConnect() error {
	if s.Connection == Connected {
		return ErrAlreadyConnected
	}
	return nil
}

// CheckCreateAccount returns the reason an account cannot be created, or nil.
func (s State) CheckCreateAccount() error {
	switch {
	case s.Connection != Connected:
		return ErrNotConnected
	case s.Account == AccountCreated:
		return ErrAccountExists
	}
	return nil
}

// CheckWithdraw returns the reason the user balance cannot be claimed, or nil.
func (s State) CheckWithdraw() error {
	switch {
	case s.Connection != Connected:
		return ErrNotConnected
	case s.Play == Playing:
		return ErrPlayInFlight
	case !s.hasUserAccount():
		return ErrNoAccount
	case !s.UserBalance.IsPositive():
		return ErrNothingToClaim
	}
	return nil
}

// CheckClose returns the reason the account cannot be closed, or nil.
func (s State) CheckClose() error {
	switch {
	case s.Connection != Connected:
		return ErrNotConnected
	case s.Play == Playing:
		return ErrPlayInFlight
	case !s.hasUserAccount():
		return ErrNoAccount
	}
	return nil
}

// hasUserAccount is true when the gateway knows an account for the identity,
// playable or not.
func (s State) hasUserAccount() bool {
	if s.Account == AccountCreated {
		return true
	}
	return s.UserStatus != "" && s.UserStatus != house.UserStatusNone
}
