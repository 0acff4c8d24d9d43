package session

import (
	"sync"

	"go.uber.org/zap"
)

// Observer receives every state the machine moves into.
type Observer interface {
	StateChanged(v View)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(View)

func (f ObserverFunc) StateChanged(v View) { f(v) }

// Machine owns the session State and applies events one at a time.
// Observers are called in transition order, outside the state lock; they must not
// call Dispatch synchronously.
type Machine struct {
	mu    sync.Mutex
	state State

	notifyMu  sync.Mutex
	observers []Observer

	log *zap.Logger
}

// NewMachine creates a machine in the initial state.
func NewMachine(minWager float64, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		state: New(minWager),
		log:   logger.Named("session"),
	}
}

// Subscribe adds an observer. It is not called for the current state.
func (m *Machine) Subscribe(o Observer) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.observers = append(m.observers, o)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// View returns the current state in serializable form.
func (m *Machine) View() View {
	return m.State().View()
}

// Dispatch applies ev and returns the resulting state and effect. Rejected events
// leave the state untouched and notify nobody.
func (m *Machine) Dispatch(ev Event) (State, Effect) {
	m.mu.Lock()
	prev := m.state
	next, eff := Apply(prev, ev)
	if eff.Kind == EffectRejected {
		m.mu.Unlock()
		m.log.Debug("event rejected",
			zap.String("event", eventName(ev)),
			zap.String("phase", string(prev.Phase())),
			zap.Error(eff.Err))
		return prev, eff
	}
	m.state = next

	// Take the notify lock before releasing the state lock so observers see
	// transitions in the order they were applied.
	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	if prev.Phase() != next.Phase() {
		m.log.Info("phase changed",
			zap.String("from", string(prev.Phase())),
			zap.String("to", string(next.Phase())),
			zap.String("event", eventName(ev)))
	}

	v := next.View()
	for _, o := range m.observers {
		o.StateChanged(v)
	}
	return next, eff
}

func eventName(ev Event) string {
	switch ev.(type) {
	case ConnectSucceeded:
		return "connect_succeeded"
	case DisconnectSucceeded:
		return "disconnect_succeeded"
	case AccountCreateSucceeded:
		return "account_created"
	case AccountClosed:
		return "account_closed"
	case Withdrawn:
		return "withdrawn"
	case Refreshed:
		return "refreshed"
	case OperationFailed:
		return "operation_failed"
	case WagerChanged:
		return "wager_changed"
	case PlayRequested:
		return "play_requested"
	case Settled:
		return "settled"
	case SettlementFailed:
		return "settlement_failed"
	default:
		return "unknown"
	}
}
