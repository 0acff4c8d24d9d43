// Package session holds the play session state machine.
//
// State is a plain value. Transitions are pure: Apply takes the current State and
// an Event and returns the next State plus the Effect the caller must carry out.
// Machine serializes transitions for concurrent callers and pushes every new state
// to its observers.
package session

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/wager"
)

// ConnectionStatus reports whether a wallet session is open.
type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "disconnected"
	Connected    ConnectionStatus = "connected"
)

// AccountStatus reports whether the connected identity has a playable house account.
type AccountStatus string

const (
	AccountNotCreated AccountStatus = "not_created"
	AccountCreated    AccountStatus = "created"
)

// PlayStatus reports whether a play is in flight.
type PlayStatus string

const (
	Idle    PlayStatus = "idle"
	Playing PlayStatus = "playing"
)

// Phase is the coarse machine state derived from the status fields.
type Phase string

const (
	PhaseDisconnected       Phase = "disconnected"
	PhaseConnectedNoAccount Phase = "connected_no_account"
	PhaseReady              Phase = "ready"
	PhasePlaying            Phase = "playing"
)

// Attempt describes the play currently in flight.
type Attempt struct {
	Selection wager.Selection `json:"selection"`
	Wager     float64         `json:"wager"`
}

// State is the complete session state.
type State struct {
	Connection ConnectionStatus
	Account    AccountStatus
	Play       PlayStatus
	LastResult *int
	Wager      float64
	Limits     wager.Limits
	InFlight   *Attempt

	UserStatus    house.UserStatus
	UserBalance   decimal.Decimal
	WalletBalance decimal.Decimal

	// result shown before the in-flight attempt, restored if it fails
	prevResult *int
}

// New returns the initial state: disconnected, no account, idle.
func New(minWager float64) State {
	return State{
		Connection: Disconnected,
		Account:    AccountNotCreated,
		Play:       Idle,
		Limits:     wager.Limits{Min: minWager},
		UserStatus: house.UserStatusNone,
	}
}

// Phase derives the machine phase.
func (s State) Phase() Phase {
	switch {
	case s.Play == Playing:
		return PhasePlaying
	case s.Connection != Connected:
		return PhaseDisconnected
	case s.Account != AccountCreated:
		return PhaseConnectedNoAccount
	default:
		return PhaseReady
	}
}

// WagerValid reports whether the current wager is within limits.
func (s State) WagerValid() bool {
	return s.Limits.Allows(s.Wager)
}

// CanPlay is true iff the account exists, no play is in flight and the wager is valid.
func (s State) CanPlay() bool {
	return s.Account == AccountCreated && s.Play != Playing && s.WagerValid()
}

// View is the serializable form of State pushed to user interfaces.
type View struct {
	Phase       Phase            `json:"phase"`
	Connection  ConnectionStatus `json:"connection"`
	Account     AccountStatus    `json:"account"`
	Play        PlayStatus       `json:"play"`
	CanPlay     bool             `json:"canPlay"`
	LastResult  *int             `json:"lastResult"`
	LastOutcome wager.Selection  `json:"lastOutcome,omitempty"`
	InFlight    *Attempt         `json:"inFlight,omitempty"`

	Wager      float64 `json:"wager"`
	WagerValid bool    `json:"wagerValid"`
	MinWager   float64 `json:"minWager"`
	MaxWager   float64 `json:"maxWager"`

	UserStatus    house.UserStatus `json:"userStatus"`
	UserBalance   decimal.Decimal  `json:"userBalance"`
	WalletBalance decimal.Decimal  `json:"walletBalance"`
}

// View returns a copy of s suitable for JSON encoding.
func (s State) View() View {
	v := View{
		Phase:         s.Phase(),
		Connection:    s.Connection,
		Account:       s.Account,
		Play:          s.Play,
		CanPlay:       s.CanPlay(),
		Wager:         s.Wager,
		WagerValid:    s.WagerValid(),
		MinWager:      s.Limits.Min,
		MaxWager:      s.Limits.Max(),
		UserStatus:    s.UserStatus,
		UserBalance:   s.UserBalance,
		WalletBalance: s.WalletBalance,
	}
	if s.LastResult != nil {
		idx := *s.LastResult
		v.LastResult = &idx
		if sel, ok := wager.Outcome(idx); ok {
			v.LastOutcome = sel
		}
	}
	if s.InFlight != nil {
		a := *s.InFlight
		v.InFlight = &a
	}
	return v
}

// applySnapshot copies the gateway's house, user and wallet figures into s.
// Only a created account in the playing status counts as playable.
func (s State) applySnapshot(snap house.Snapshot) State {
	s.Limits.MaxPayout = snap.House.MaxPayout.InexactFloat64()
	s.UserStatus = snap.User.Status
	s.UserBalance = snap.User.Balance
	s.WalletBalance = snap.Wallet.Balance
	if snap.User.Ready() {
		s.Account = AccountCreated
	} else {
		s.Account = AccountNotCreated
	}
	return s
}

func intPtr(v int) *int { return &v }
