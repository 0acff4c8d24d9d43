package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap/zaptest"

	"github.com/MJE43/flip-go/internal/config"
	"github.com/MJE43/flip-go/internal/credentials"
	"github.com/MJE43/flip-go/internal/session"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		GatewayURL:        "http://127.0.0.1:1",
		CreatorAddress:    "Creator111",
		Profile:           "default",
		MinWager:          0.01,
		SettlementTimeout: time.Second,
		DataDir:           t.TempDir(),
	}
}

func TestNewRequiresSetup(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, zaptest.NewLogger(t))
	if !errors.Is(err, config.ErrSetupRequired) {
		t.Fatalf("expected setup error, got %v", err)
	}
}

func TestNewWiresComponents(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t)
	store := credentials.NewKeyringStore(credentials.DefaultService, cfg.SecretsFallbackPath())
	if err := store.SetAccessToken("default", "tok-from-keychain"); err != nil {
		t.Fatal(err)
	}

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Gateway.AccessToken(); got != "tok-from-keychain" {
		t.Errorf("expected keychain token, got %q", got)
	}
	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		t.Errorf("history db not created: %v", err)
	}
	if a.Game.View().Phase != session.PhaseDisconnected {
		t.Errorf("expected disconnected start, got %s", a.Game.View().Phase)
	}

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConfiguredTokenWins(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t)
	cfg.AccessToken = "tok-from-env"

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	if got := a.Gateway.AccessToken(); got != "tok-from-env" {
		t.Errorf("expected env token, got %q", got)
	}

	if err := a.SaveAccessToken("tok-new"); err != nil {
		t.Fatal(err)
	}
	if got := a.Gateway.AccessToken(); got != "tok-new" {
		t.Errorf("expected saved token in use, got %q", got)
	}
}

func TestForgetAccessToken(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	if err := a.SaveAccessToken("tok-saved"); err != nil {
		t.Fatal(err)
	}
	if err := a.ForgetAccessToken(); err != nil {
		t.Fatalf("ForgetAccessToken: %v", err)
	}
	if got := a.Gateway.AccessToken(); got != "" {
		t.Errorf("token still in use: %q", got)
	}
	if _, err := a.Credentials.AccessToken(cfg.Profile); !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("expected stored token gone, got %v", err)
	}
}

func TestCurrentSessionIsRecorded(t *testing.T) {
	keyring.MockInit()
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	sess, err := a.Game.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if sess.Creator != "Creator111" || sess.EndedAt != nil {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestLocalAPIOffWithZeroPort(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	if err := a.StartLocalAPI(); err != nil {
		t.Fatal(err)
	}
	if a.LocalAPIAddr() != "" {
		t.Errorf("port 0 should leave the API off, got %s", a.LocalAPIAddr())
	}
}
