package house

import (
	"encoding/json"

	"github.com/MJE43/flip-go/internal/wager"
)

// --- Response envelope ---

// Response is the top-level envelope for all gateway responses.
type Response struct {
	Errors []APIError      `json:"errors,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// HasError returns true if the response contains API errors.
func (r *Response) HasError() bool {
	return len(r.Errors) > 0
}

// FirstError returns the first error, or nil if none.
func (r *Response) FirstError() *APIError {
	if r.HasError() {
		return &r.Errors[0]
	}
	return nil
}

// --- State ---

// wireState is the gateway's state payload. Amounts are lamports.
type wireState struct {
	Connected bool `json:"connected"`
	House     struct {
		MaxPayout int64 `json:"maxPayout"`
	} `json:"house"`
	User struct {
		Created bool       `json:"created"`
		Balance int64      `json:"balance"`
		Status  UserStatus `json:"status"`
	} `json:"user"`
	Wallet struct {
		Balance int64 `json:"balance"`
	} `json:"wallet"`
}

func (w wireState) snapshot() Snapshot {
	return Snapshot{
		Connected: w.Connected,
		House:     House{MaxPayout: wager.FromLamports(w.House.MaxPayout)},
		User: User{
			Created: w.User.Created,
			Balance: wager.FromLamports(w.User.Balance),
			Status:  w.User.Status,
		},
		Wallet: Wallet{Balance: wager.FromLamports(w.Wallet.Balance)},
	}
}

// --- Plays ---

// PlayStatus is the settlement status of a submitted play.
type PlayStatus string

const (
	PlayPending PlayStatus = "pending"
	PlaySettled PlayStatus = "settled"
	PlayFailed  PlayStatus = "failed"
)

// playRequest is the body of v1/play.
type playRequest struct {
	Creator    string `json:"creator"`
	Wager      []int  `json:"wager"`
	Amount     int64  `json:"amount"`
	Identifier string `json:"identifier"`
}

// wirePlay is the play object returned by v1/play and v1/plays/{id}.
type wirePlay struct {
	ID          string     `json:"id"`
	Status      PlayStatus `json:"status"`
	ResultIndex int        `json:"resultIndex"`
	Payout      int64      `json:"payout"`
	Error       string     `json:"error,omitempty"`
}

func (p wirePlay) settlement() Settlement {
	return Settlement{
		PlayID:      p.ID,
		ResultIndex: p.ResultIndex,
		Payout:      wager.FromLamports(p.Payout),
	}
}
