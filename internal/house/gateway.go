package house

import (
	"context"

	"github.com/shopspring/decimal"
)

// UserStatus is the gateway-reported state of a player account.
type UserStatus string

const (
	UserStatusNone         UserStatus = "none"
	UserStatusPlaying      UserStatus = "playing"
	UserStatusHashRequired UserStatus = "hashRequired"
	UserStatusClosing      UserStatus = "closing"
)

// House describes the counterparty bank. Amounts are in SOL.
type House struct {
	MaxPayout decimal.Decimal `json:"maxPayout"`
}

// User is the player's account with the house. Balance is the unclaimed amount.
type User struct {
	Created bool            `json:"created"`
	Balance decimal.Decimal `json:"balance"`
	Status  UserStatus      `json:"status"`
}

// Ready reports whether the account exists and accepts plays.
func (u User) Ready() bool {
	return u.Created && u.Status == UserStatusPlaying
}

// Wallet is the connected identity's own balance. Display only.
type Wallet struct {
	Balance decimal.Decimal `json:"balance"`
}

// Snapshot is a point-in-time read of everything the session cares about.
type Snapshot struct {
	Connected bool   `json:"connected"`
	House     House  `json:"house"`
	User      User   `json:"user"`
	Wallet    Wallet `json:"wallet"`
}

// Settlement is the resolved outcome of one play.
type Settlement struct {
	PlayID      string          `json:"playId"`
	ResultIndex int             `json:"resultIndex"`
	Payout      decimal.Decimal `json:"payout"`
}

// Handle tracks a submitted play until it settles.
type Handle interface {
	ID() string
	// Result blocks until the play settles, fails, or ctx is done.
	Result(ctx context.Context) (Settlement, error)
}

// Gateway is the capability set the session needs from the wagering service.
type Gateway interface {
	Connect(ctx context.Context) (Snapshot, error)
	Disconnect(ctx context.Context) error
	CreateAccount(ctx context.Context) (Snapshot, error)
	CloseAccount(ctx context.Context) (Snapshot, error)
	Withdraw(ctx context.Context) (Snapshot, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	// Play submits a bet of lamports on the given weight vector. It returns as soon as
	// the gateway has accepted the request.
	Play(ctx context.Context, weights []int, lamports int64) (Handle, error)
}
