package bindings

import (
	"context"
	"errors"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/account"
	"github.com/MJE43/flip-go/internal/app"
	"github.com/MJE43/flip-go/internal/config"
	"github.com/MJE43/flip-go/internal/game"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/play"
	"github.com/MJE43/flip-go/internal/session"
	"github.com/MJE43/flip-go/internal/wager"
)

// Frontend event names.
const (
	EventState   = "session:state"
	EventOutcome = "play:outcome"
)

const (
	closeButton  = "Close account"
	deleteButton = "Delete"
	cancelButton = "Cancel"
)

// errNotReady is returned by every game call while setup is incomplete.
var errNotReady = errors.New("flip-go is not configured; see Setup()")

// SetupStatus tells the frontend whether the client is usable.
type SetupStatus struct {
	Ready   bool     `json:"ready"`
	Guide   string   `json:"guide,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// OutcomeEvent is emitted on EventOutcome when a play finishes.
type OutcomeEvent struct {
	play.Outcome
	Error string `json:"error,omitempty"`
}

// GameModule exposes the game to the Wails frontend.
type GameModule struct {
	ctx   context.Context
	ctxMu sync.RWMutex

	game   *game.Client
	tokens tokenStore
	setup  SetupStatus
	log    *zap.Logger

	emit   func(ctx context.Context, name string, data ...interface{})
	dialog func(ctx context.Context, opts runtime.MessageDialogOptions) (string, error)
}

// tokenStore saves and forgets the gateway access token.
type tokenStore interface {
	SaveAccessToken(token string) error
	ForgetAccessToken() error
}

// NewGameModule binds a. When a is nil, setupErr explains why and every game
// call fails until the app is configured.
func NewGameModule(a *app.App, setupErr error) *GameModule {
	if a == nil {
		return newGameModule(nil, nil, setupStatus(setupErr), zap.NewNop())
	}
	return newGameModule(a.Game, a, SetupStatus{Ready: true}, a.Log)
}

func newGameModule(g *game.Client, tokens tokenStore, setup SetupStatus, log *zap.Logger) *GameModule {
	m := &GameModule{
		game:   g,
		tokens: tokens,
		setup:  setup,
		log:    log.Named("bindings"),
		emit:   runtime.EventsEmit,
		dialog: runtime.MessageDialog,
	}
	if g != nil {
		g.Subscribe(session.ObserverFunc(func(v session.View) {
			m.send(EventState, v)
		}))
	}
	return m
}

func setupStatus(err error) SetupStatus {
	st := SetupStatus{Guide: config.SetupGuide}
	var se *config.SetupError
	if errors.As(err, &se) {
		st.Missing = se.Missing
	} else if err != nil {
		st.Error = err.Error()
	}
	return st
}

// Startup is called by Wails on application startup.
func (m *GameModule) Startup(ctx context.Context) {
	m.ctxMu.Lock()
	m.ctx = ctx
	m.ctxMu.Unlock()
}

func (m *GameModule) appContext() context.Context {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	return m.ctx
}

// send emits an event once the frontend is up.
func (m *GameModule) send(name string, data interface{}) {
	ctx := m.appContext()
	if ctx == nil {
		return
	}
	m.emit(ctx, name, data)
}

func (m *GameModule) callCtx() context.Context {
	if ctx := m.appContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Setup reports whether the client is configured.
func (m *GameModule) Setup() SetupStatus {
	return m.setup
}

// GetState returns the current session state.
func (m *GameModule) GetState() (session.View, error) {
	if m.game == nil {
		return session.View{}, errNotReady
	}
	return m.game.View(), nil
}

// SetWager sets the wager in SOL and returns the updated state.
func (m *GameModule) SetWager(amount float64) (session.View, error) {
	if m.game == nil {
		return session.View{}, errNotReady
	}
	return m.game.SetWager(amount), nil
}

// Play starts a play on "heads" or "tails". It returns once the play is
// accepted; the result arrives as an EventOutcome event.
func (m *GameModule) Play(selection string) (session.View, error) {
	if m.game == nil {
		return session.View{}, errNotReady
	}
	sel, err := wager.ParseSelection(selection)
	if err != nil {
		return m.game.View(), err
	}
	ch, err := m.game.Submit(m.callCtx(), sel)
	if err != nil {
		return m.game.View(), err
	}
	go func() {
		out := <-ch
		ev := OutcomeEvent{Outcome: out}
		if out.Err != nil {
			ev.Error = out.Err.Error()
		}
		m.send(EventOutcome, ev)
	}()
	return m.game.View(), nil
}

func (m *GameModule) lifecycle(fn func(context.Context) error) (session.View, error) {
	if m.game == nil {
		return session.View{}, errNotReady
	}
	err := fn(m.callCtx())
	return m.game.View(), err
}

func (m *GameModule) Connect() (session.View, error) {
	return m.lifecycle(m.game.Connect)
}

func (m *GameModule) Disconnect() (session.View, error) {
	return m.lifecycle(m.game.Disconnect)
}

func (m *GameModule) CreateAccount() (session.View, error) {
	return m.lifecycle(m.game.CreateAccount)
}

func (m *GameModule) Withdraw() (session.View, error) {
	return m.lifecycle(m.game.Withdraw)
}

func (m *GameModule) Refresh() (session.View, error) {
	return m.lifecycle(m.game.Refresh)
}

// CloseAccount asks the user through a native dialog before closing.
func (m *GameModule) CloseAccount() (session.View, error) {
	return m.lifecycle(func(ctx context.Context) error {
		return m.game.CloseAccount(ctx, account.ConfirmFunc(m.confirm))
	})
}

func (m *GameModule) confirm(ctx context.Context, prompt string) (bool, error) {
	choice, err := m.dialog(ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Close account",
		Message:       prompt,
		Buttons:       []string{closeButton, cancelButton},
		DefaultButton: cancelButton,
		CancelButton:  cancelButton,
	})
	if err != nil {
		return false, err
	}
	// Windows question dialogs only offer Yes/No.
	return choice == closeButton || choice == "Yes", nil
}

// RecentPlays lists up to limit stored plays, newest first.
func (m *GameModule) RecentPlays(limit int) ([]history.Play, error) {
	if m.game == nil {
		return nil, errNotReady
	}
	if limit <= 0 {
		limit = 20
	}
	return m.game.RecentPlays(m.callCtx(), limit)
}

// DebugUser returns the raw user record as JSON.
func (m *GameModule) DebugUser() (string, error) {
	if m.game == nil {
		return "", errNotReady
	}
	return m.game.DebugUser(m.callCtx())
}

// SaveAccessToken stores the gateway token in the OS keychain.
func (m *GameModule) SaveAccessToken(token string) error {
	if m.tokens == nil {
		return errNotReady
	}
	if err := m.tokens.SaveAccessToken(token); err != nil {
		m.log.Warn("saving access token failed", zap.Error(err))
		return err
	}
	return nil
}

// ForgetAccessToken removes the stored gateway token.
func (m *GameModule) ForgetAccessToken() error {
	if m.tokens == nil {
		return errNotReady
	}
	return m.tokens.ForgetAccessToken()
}

// Summary aggregates every stored play.
func (m *GameModule) Summary() (history.Summary, error) {
	if m.game == nil {
		return history.Summary{}, errNotReady
	}
	return m.game.Summary(m.callCtx())
}

// CurrentSession returns the history session being recorded.
func (m *GameModule) CurrentSession() (*history.Session, error) {
	if m.game == nil {
		return nil, errNotReady
	}
	return m.game.CurrentSession(m.callCtx())
}

// SessionPlays pages through one session's plays. An empty id means the
// current session.
func (m *GameModule) SessionPlays(id string, page, perPage int) (*history.PlaysPage, error) {
	if m.game == nil {
		return nil, errNotReady
	}
	return m.game.SessionPlays(m.callCtx(), id, page, perPage)
}

// DeleteSession removes a past session after the user confirms.
func (m *GameModule) DeleteSession(id string) error {
	if m.game == nil {
		return errNotReady
	}
	choice, err := m.dialog(m.callCtx(), runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Delete session",
		Message:       "Delete this session and all of its plays from the local history?",
		Buttons:       []string{deleteButton, cancelButton},
		DefaultButton: cancelButton,
		CancelButton:  cancelButton,
	})
	if err != nil {
		return err
	}
	if choice != deleteButton && choice != "Yes" {
		return account.ErrNotConfirmed
	}
	return m.game.DeleteSession(m.callCtx(), id)
}
