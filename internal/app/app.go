// Package app builds the client's object graph from Config and tears it down.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/MJE43/flip-go/internal/config"
	"github.com/MJE43/flip-go/internal/credentials"
	"github.com/MJE43/flip-go/internal/game"
	"github.com/MJE43/flip-go/internal/history"
	"github.com/MJE43/flip-go/internal/house"
	"github.com/MJE43/flip-go/internal/localapi"
	"github.com/MJE43/flip-go/internal/metrics"
)

// App owns every long-lived component.
type App struct {
	Config      config.Config
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	Credentials *credentials.KeyringStore
	Gateway     *house.Client
	History     *history.Store
	Game        *game.Client

	recorder *history.SessionRecorder
	api      *localapi.Server
}

// New validates cfg and wires the client. A nil logger disables logging.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create data dir: %w", err)
	}

	a := &App{
		Config:      cfg,
		Log:         log,
		Metrics:     metrics.New(),
		Credentials: credentials.NewKeyringStore(credentials.DefaultService, cfg.SecretsFallbackPath()),
	}

	token, err := a.accessToken()
	if err != nil {
		return nil, err
	}
	a.Gateway = house.NewClient(house.Config{
		Endpoint:          cfg.GatewayURL,
		AccessToken:       token,
		Creator:           cfg.CreatorAddress,
		SettlementTimeout: cfg.SettlementTimeout,
	})

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	a.History = store

	rec, err := history.NewSessionRecorder(ctx, store, cfg.CreatorAddress)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("app: start history session: %w", err)
	}
	a.recorder = rec

	a.Game = game.New(game.Deps{
		Gateway:           a.Gateway,
		MinWager:          cfg.MinWager,
		SettlementTimeout: cfg.SettlementTimeout,
		Recorder:          rec,
		History:           store,
		SessionID:         rec.SessionID(),
		Metrics:           a.Metrics,
		Logger:            log,
	})

	log.Info("client ready",
		zap.String("gateway", a.Gateway.Endpoint()),
		zap.String("creator", a.Gateway.Creator()),
		zap.String("profile", cfg.Profile),
		zap.Bool("token", token != ""),
		zap.String("history", cfg.HistoryPath()),
		zap.String("history_session", rec.SessionID()))
	return a, nil
}

// accessToken prefers the configured token and falls back to the keychain.
func (a *App) accessToken() (string, error) {
	if a.Config.AccessToken != "" {
		return a.Config.AccessToken, nil
	}
	token, err := a.Credentials.AccessToken(a.Config.Profile)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, credentials.ErrNotFound):
		a.Log.Warn("no access token stored", zap.String("profile", a.Config.Profile))
		return "", nil
	default:
		return "", fmt.Errorf("app: read access token: %w", err)
	}
}

// SaveAccessToken stores token for the configured profile and uses it from now on.
func (a *App) SaveAccessToken(token string) error {
	if err := a.Credentials.SetAccessToken(a.Config.Profile, token); err != nil {
		return err
	}
	a.Gateway.SetAccessToken(token)
	return nil
}

// ForgetAccessToken removes the stored token for the configured profile and
// stops sending one.
func (a *App) ForgetAccessToken() error {
	if err := a.Credentials.Delete(a.Config.Profile); err != nil {
		return err
	}
	a.Gateway.SetAccessToken("")
	return nil
}

// StartLocalAPI serves the loopback API. A zero port leaves it off.
func (a *App) StartLocalAPI() error {
	if a.Config.LocalAPIPort == 0 {
		return nil
	}
	a.api = localapi.New(a.Game, localapi.Options{
		Addr:    a.Config.LocalAPIAddr(),
		Token:   a.Config.LocalAPIToken,
		Metrics: a.Metrics,
		Logger:  a.Log,
	})
	return a.api.Start()
}

// LocalAPIAddr returns the bound API address, or "" when it is not running.
func (a *App) LocalAPIAddr() string {
	if a.api == nil {
		return ""
	}
	return a.api.Addr()
}

// Close stops the API, waits for in-flight plays until ctx ends and closes the
// history store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.api != nil {
		if err := a.api.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: stop local api: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.Game.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Log.Warn("closing with a play still in flight")
	}

	// The session end is recorded even when ctx has expired.
	if err := a.recorder.Close(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, fmt.Errorf("app: end history session: %w", err))
	}
	if err := a.History.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close history: %w", err))
	}
	_ = a.Log.Sync()
	return errors.Join(errs...)
}
