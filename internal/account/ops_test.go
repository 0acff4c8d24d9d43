package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/house/housetest"
	"github.com/MJE43/flip-go/internal/metrics"
	"github.com/MJE43/flip-go/internal/session"
)

func newOps(t *testing.T, fake *housetest.Fake) (*Ops, *session.Machine, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	machine := session.NewMachine(0.01, zaptest.NewLogger(t))
	return New(fake, machine, m, zaptest.NewLogger(t)), machine, m
}

func yes(context.Context, string) (bool, error) { return true, nil }
func no(context.Context, string) (bool, error)  { return false, nil }

func TestConnectWithoutAccount(t *testing.T) {
	fake := housetest.New(10)
	ops, machine, _ := newOps(t, fake)

	if err := ops.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := machine.State().Phase(); got != session.PhaseConnectedNoAccount {
		t.Errorf("expected connected without account, got %s", got)
	}
	if err := ops.Connect(context.Background()); !errors.Is(err, session.ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
	if fake.Calls("connect") != 1 {
		t.Errorf("second connect reached the gateway")
	}
}

func TestConnectWithExistingAccount(t *testing.T) {
	fake := housetest.New(10).WithAccount(0.25)
	ops, machine, _ := newOps(t, fake)

	if err := ops.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := machine.State().Phase(); got != session.PhaseReady {
		t.Errorf("expected ready, got %s", got)
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	fake := housetest.New(10)
	fake.ConnectErr = &house.APIError{ErrorType: house.ErrTypeUserRejected, Message: "declined"}
	ops, machine, m := newOps(t, fake)

	err := ops.Connect(context.Background())
	var apiErr *house.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUserRejected() {
		t.Fatalf("expected wrapped user rejection, got %v", err)
	}
	if machine.State().Phase() != session.PhaseDisconnected {
		t.Error("failed connect must leave the session disconnected")
	}
	if got := testutil.ToFloat64(m.AccountOps.WithLabelValues(OpConnect, "error")); got != 1 {
		t.Errorf("error counter: got %v", got)
	}
}

func TestCreateAccount(t *testing.T) {
	fake := housetest.New(10)
	ops, machine, m := newOps(t, fake)

	if err := ops.CreateAccount(context.Background()); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	fake.CreateErr = errors.New("blockhash not found")
	if err := ops.CreateAccount(context.Background()); err == nil {
		t.Fatal("expected create failure")
	}
	if machine.State().Phase() != session.PhaseConnectedNoAccount {
		t.Error("failed create must stay without account")
	}

	fake.CreateErr = nil
	if err := ops.CreateAccount(context.Background()); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if machine.State().Phase() != session.PhaseReady {
		t.Errorf("expected ready, got %s", machine.State().Phase())
	}
	if err := ops.CreateAccount(context.Background()); !errors.Is(err, session.ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
	if got := testutil.ToFloat64(m.AccountOps.WithLabelValues(OpCreate, "ok")); got != 1 {
		t.Errorf("ok counter: got %v", got)
	}
}

func TestWithdrawRequiresBalance(t *testing.T) {
	fake := housetest.New(10).WithAccount(0)
	ops, _, _ := newOps(t, fake)
	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := ops.Withdraw(context.Background()); !errors.Is(err, session.ErrNothingToClaim) {
		t.Fatalf("expected ErrNothingToClaim, got %v", err)
	}
	if fake.Calls("withdraw") != 0 {
		t.Error("empty claim reached the gateway")
	}
}

func TestWithdraw(t *testing.T) {
	fake := housetest.New(10).WithAccount(0.75)
	ops, machine, _ := newOps(t, fake)
	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := ops.Withdraw(context.Background()); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	st := machine.State()
	if !st.UserBalance.IsZero() {
		t.Errorf("user balance after claim: %s", st.UserBalance)
	}
	if st.WalletBalance.String() != "0.75" {
		t.Errorf("wallet balance after claim: %s", st.WalletBalance)
	}
	if st.Phase() != session.PhaseReady {
		t.Errorf("expected ready, got %s", st.Phase())
	}
}

func TestCloseAccountRequiresConfirmation(t *testing.T) {
	fake := housetest.New(10).WithAccount(0.1)
	ops, machine, _ := newOps(t, fake)
	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := ops.CloseAccount(context.Background(), nil); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("nil confirmer: expected ErrNotConfirmed, got %v", err)
	}
	if err := ops.CloseAccount(context.Background(), ConfirmFunc(no)); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("declined: expected ErrNotConfirmed, got %v", err)
	}
	boom := errors.New("dialog crashed")
	err := ops.CloseAccount(context.Background(), ConfirmFunc(func(context.Context, string) (bool, error) { return false, boom }))
	if !errors.Is(err, boom) {
		t.Fatalf("expected confirm error, got %v", err)
	}
	if fake.Calls("close") != 0 {
		t.Fatal("unconfirmed close reached the gateway")
	}

	var prompt string
	confirm := ConfirmFunc(func(_ context.Context, p string) (bool, error) {
		prompt = p
		return true, nil
	})
	if err := ops.CloseAccount(context.Background(), confirm); err != nil {
		t.Fatalf("CloseAccount: %v", err)
	}
	if !strings.Contains(prompt, "forfeits") {
		t.Errorf("prompt must warn about the balance, got %q", prompt)
	}
	if machine.State().Phase() != session.PhaseConnectedNoAccount {
		t.Errorf("expected no account after close, got %s", machine.State().Phase())
	}
}

func TestCloseAccountBlockedDuringPlay(t *testing.T) {
	fake := housetest.New(10).WithAccount(0.1)
	ops, machine, _ := newOps(t, fake)
	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	machine.Dispatch(session.WagerChanged{Amount: 1})
	machine.Dispatch(session.PlayRequested{Selection: "heads"})

	if err := ops.CloseAccount(context.Background(), ConfirmFunc(yes)); !errors.Is(err, session.ErrPlayInFlight) {
		t.Errorf("expected ErrPlayInFlight, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	fake := housetest.New(10).WithAccount(0)
	ops, machine, _ := newOps(t, fake)

	if err := ops.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect while disconnected: %v", err)
	}
	if fake.Calls("disconnect") != 0 {
		t.Error("no-op disconnect reached the gateway")
	}

	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ops.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if machine.State().Phase() != session.PhaseDisconnected {
		t.Errorf("expected disconnected, got %s", machine.State().Phase())
	}
}

func TestRefreshAndDebugUser(t *testing.T) {
	fake := housetest.New(10).WithAccount(0.5)
	ops, machine, _ := newOps(t, fake)

	if err := ops.Refresh(context.Background()); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := ops.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	fake.SetMaxPayout(4)
	if err := ops.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if machine.State().Limits.Max() != 2 {
		t.Errorf("expected max wager 2, got %v", machine.State().Limits.Max())
	}

	out, err := ops.DebugUser(context.Background())
	if err != nil {
		t.Fatalf("DebugUser: %v", err)
	}
	if !strings.Contains(out, `"status": "playing"`) || !strings.Contains(out, `"created": true`) {
		t.Errorf("unexpected debug output:\n%s", out)
	}
}
