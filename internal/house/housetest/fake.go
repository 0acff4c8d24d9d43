// Package housetest provides an in-memory house.Gateway for tests.
package housetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MJE43/flip-go/internal/house"
)

// PlayCall records one Play submission.
type PlayCall struct {
	Weights  []int
	Lamports int64
	Handle   *Handle
}

// Fake is a scriptable gateway. The zero value is a disconnected gateway whose
// identity has no account. Plays stay pending until the test resolves them,
// unless Settle is set.
type Fake struct {
	mu    sync.Mutex
	state house.Snapshot
	plays []PlayCall
	calls map[string]int

	ConnectErr    error
	DisconnectErr error
	CreateErr     error
	CloseErr      error
	WithdrawErr   error
	SnapshotErr   error
	PlayErr       error

	// Settle, when set, resolves each play immediately with its return values.
	Settle func(call PlayCall) (house.Settlement, error)

	// OnSnapshot, when set, runs at the start of every Snapshot call, outside the
	// fake's lock.
	OnSnapshot func()
}

var _ house.Gateway = (*Fake)(nil)

// New returns a fake whose house pays out at most maxPayout SOL.
func New(maxPayout float64) *Fake {
	f := &Fake{calls: make(map[string]int)}
	f.state.House.MaxPayout = decimal.NewFromFloat(maxPayout)
	f.state.User.Status = house.UserStatusNone
	return f
}

// WithAccount marks the identity as already holding a playable account.
func (f *Fake) WithAccount(balance float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.User = house.User{Created: true, Balance: decimal.NewFromFloat(balance), Status: house.UserStatusPlaying}
	return f
}

// SetMaxPayout changes the house limit reported by later snapshots.
func (f *Fake) SetMaxPayout(maxPayout float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.House.MaxPayout = decimal.NewFromFloat(maxPayout)
}

// State returns the current fake state.
func (f *Fake) State() house.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Calls returns how many times the named operation was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Plays returns every play submitted so far.
func (f *Fake) Plays() []PlayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PlayCall(nil), f.plays...)
}

// LastHandle returns the handle of the most recent play, or nil.
func (f *Fake) LastHandle() *Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.plays) == 0 {
		return nil
	}
	return f.plays[len(f.plays)-1].Handle
}

func (f *Fake) record(op string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *Fake) Connect(ctx context.Context) (house.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect")
	if f.ConnectErr != nil {
		return house.Snapshot{}, f.ConnectErr
	}
	f.state.Connected = true
	return f.state, nil
}

func (f *Fake) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect")
	if f.DisconnectErr != nil {
		return f.DisconnectErr
	}
	f.state.Connected = false
	return nil
}

func (f *Fake) CreateAccount(ctx context.Context) (house.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	if f.CreateErr != nil {
		return house.Snapshot{}, f.CreateErr
	}
	f.state.User = house.User{Created: true, Balance: decimal.Zero, Status: house.UserStatusPlaying}
	return f.state, nil
}

func (f *Fake) CloseAccount(ctx context.Context) (house.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close")
	if f.CloseErr != nil {
		return house.Snapshot{}, f.CloseErr
	}
	f.state.User = house.User{Status: house.UserStatusNone}
	return f.state, nil
}

func (f *Fake) Withdraw(ctx context.Context) (house.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("withdraw")
	if f.WithdrawErr != nil {
		return house.Snapshot{}, f.WithdrawErr
	}
	f.state.Wallet.Balance = f.state.Wallet.Balance.Add(f.state.User.Balance)
	f.state.User.Balance = decimal.Zero
	return f.state, nil
}

func (f *Fake) Snapshot(ctx context.Context) (house.Snapshot, error) {
	if f.OnSnapshot != nil {
		f.OnSnapshot()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("snapshot")
	if f.SnapshotErr != nil {
		return house.Snapshot{}, f.SnapshotErr
	}
	return f.state, nil
}

func (f *Fake) Play(ctx context.Context, weights []int, lamports int64) (house.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("play")
	if f.PlayErr != nil {
		return nil, f.PlayErr
	}

	h := newHandle(fmt.Sprintf("play-%d", len(f.plays)+1))
	call := PlayCall{Weights: append([]int(nil), weights...), Lamports: lamports, Handle: h}
	f.plays = append(f.plays, call)

	if f.Settle != nil {
		s, err := f.Settle(call)
		if err != nil {
			h.Reject(err)
		} else {
			h.ResolveWith(s)
		}
	}
	return h, nil
}

// Handle is a play handle the test resolves by hand.
type Handle struct {
	id   string
	once sync.Once
	done chan struct{}
	res  house.Settlement
	err  error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func (h *Handle) ID() string { return h.id }

// Resolve settles the play with the given outcome index. Later calls are ignored.
func (h *Handle) Resolve(resultIndex int) {
	h.ResolveWith(house.Settlement{ResultIndex: resultIndex, Payout: decimal.Zero})
}

// ResolveWith settles the play with s. An empty PlayID is filled from the handle.
func (h *Handle) ResolveWith(s house.Settlement) {
	h.once.Do(func() {
		if s.PlayID == "" {
			s.PlayID = h.id
		}
		h.res = s
		close(h.done)
	})
}

// Reject fails the play with err. Later calls are ignored.
func (h *Handle) Reject(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *Handle) Result(ctx context.Context) (house.Settlement, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return house.Settlement{}, ctx.Err()
	}
}
