// Package game is the operation surface user interfaces drive: the session state,
// the wager, plays and the account lifecycle.
package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/account"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/metrics"
	"github.com/MJE43/flip-go/internal/play"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

// History is the play history the client reads and prunes.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Play, error)
	Summarize(ctx context.Context) (history.Summary, error)
	GetSession(ctx context.Context, id string) (*history.Session, error)
	SessionPlays(ctx context.Context, sessionID string, page, perPage int) (*history.PlaysPage, error)
	DeleteSession(ctx context.Context, id string) error
}

var (
	// ErrNoHistory is returned by history calls on a client built without a store.
	ErrNoHistory = errors.New("game: no play history")
	// ErrSessionActive is returned when deleting the session being recorded.
	ErrSessionActive = errors.New("game: session is still recording")
)

// Deps are the collaborators a Client is built from. Gateway is required.
type Deps struct {
	Gateway           house.Gateway
	MinWager          float64
	SettlementTimeout time.Duration
	Recorder          play.Recorder
	History           History
	SessionID         string // history session Recorder writes to
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

// Client ties the session machine to the play and account operations.
type Client struct {
	machine *session.Machine
	ops     *account.Ops
	plays   *play.Orchestrator
	history History
	session string
}

// New builds a client in the disconnected state.
func New(d Deps) *Client {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MinWager <= 0 {
		d.MinWager = wager.DefaultMinWager
	}

	machine := session.NewMachine(d.MinWager, d.Logger)
	return &Client{
		machine: machine,
		ops:     account.New(d.Gateway, machine, d.Metrics, d.Logger),
		plays: play.New(d.Gateway, machine, play.Options{
			Recorder:          d.Recorder,
			Metrics:           d.Metrics,
			Logger:            d.Logger,
			SettlementTimeout: d.SettlementTimeout,
		}),
		history: d.History,
		session: d.SessionID,
	}
}

// View returns the current session state.
func (c *Client) View() session.View {
	return c.machine.View()
}

// Subscribe registers an observer for every state change.
func (c *Client) Subscribe(o session.Observer) {
	c.machine.Subscribe(o)
}

// SetWager sets the amount, in SOL, staked by the next play. Any number is
// accepted; the returned view says whether it is playable.
func (c *Client) SetWager(amount float64) session.View {
	st, _ := c.machine.Dispatch(session.WagerChanged{Amount: amount})
	return st.View()
}

// Submit starts a play and returns once it is accepted.
func (c *Client) Submit(ctx context.Context, sel wager.Selection) (<-chan play.Outcome, error) {
	return c.plays.Submit(ctx, sel)
}

// Play starts a play and waits for its outcome.
func (c *Client) Play(ctx context.Context, sel wager.Selection) (play.Outcome, error) {
	return c.plays.Play(ctx, sel)
}

func (c *Client) Connect(ctx context.Context) error       { return c.ops.Connect(ctx) }
func (c *Client) Disconnect(ctx context.Context) error    { return c.ops.Disconnect(ctx) }
func (c *Client) CreateAccount(ctx context.Context) error { return c.ops.CreateAccount(ctx) }
func (c *Client) Withdraw(ctx context.Context) error      { return c.ops.Withdraw(ctx) }
func (c *Client) Refresh(ctx context.Context) error       { return c.ops.Refresh(ctx) }

// CloseAccount closes the account once confirm says yes.
func (c *Client) CloseAccount(ctx context.Context, confirm account.Confirmer) error {
	return c.ops.CloseAccount(ctx, confirm)
}

// DebugUser returns the gateway's user record as indented JSON.
func (c *Client) DebugUser(ctx context.Context) (string, error) {
	return c.ops.DebugUser(ctx)
}

// RecentPlays lists the latest settled plays, newest first. Without a history
// store it returns nothing.
func (c *Client) RecentPlays(ctx context.Context, limit int) ([]history.Play, error) {
	if c.history == nil {
		return nil, nil
	}
	return c.history.Recent(ctx, limit)
}

// Summary aggregates every stored play. Without a history store it is empty.
func (c *Client) Summary(ctx context.Context) (history.Summary, error) {
	if c.history == nil {
		return history.Summary{}, nil
	}
	return c.history.Summarize(ctx)
}

// CurrentSession returns the history session this client records into.
func (c *Client) CurrentSession(ctx context.Context) (*history.Session, error) {
	if c.history == nil || c.session == "" {
		return nil, ErrNoHistory
	}
	return c.history.GetSession(ctx, c.session)
}

// SessionPlays pages through the plays of one history session, newest first.
// An empty id means the current session.
func (c *Client) SessionPlays(ctx context.Context, id string, page, perPage int) (*history.PlaysPage, error) {
	if c.history == nil {
		return nil, ErrNoHistory
	}
	if id == "" {
		id = c.session
	}
	if _, err := c.history.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return c.history.SessionPlays(ctx, id, page, perPage)
}

// DeleteSession removes a past history session and its plays.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if c.history == nil {
		return ErrNoHistory
	}
	if id == c.session {
		return ErrSessionActive
	}
	if _, err := c.history.GetSession(ctx, id); err != nil {
		return err
	}
	return c.history.DeleteSession(ctx, id)
}

// Wait blocks until every accepted play has finished.
func (c *Client) Wait() {
	c.plays.Wait()
}
