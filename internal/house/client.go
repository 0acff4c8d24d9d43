// Package house provides a Go client for the coin-flip wagering gateway.
//
// The gateway fronts the on-chain wagering program: it owns the wallet connection,
// the player's house account and bet settlement. The client is deliberately thin;
// it submits requests and reports what the gateway says.
//
// # Retries
//
// Idempotent reads (state, play status) are retried on rate limits and server errors
// with exponential backoff. Mutations (connect, account operations, plays) are sent
// exactly once; the caller decides whether to try again.
//
// # Usage
//
//	client := house.NewClient(house.Config{
//	    Endpoint:    "https://gateway.example",
//	    AccessToken: token,
//	    Creator:     "CreatorAddress...",
//	})
//
//	snap, err := client.Connect(ctx)
package house

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config holds configuration for the gateway client.
type Config struct {
	// Endpoint is the gateway base URL. A bare host is treated as https.
	Endpoint string

	// AccessToken authenticates the connected identity. Sent as x-access-token.
	AccessToken string

	// Creator is the game creator address plays are attributed to.
	Creator string

	// MaxRetries is the maximum number of retry attempts for retryable reads.
	// Defaults to 3 if zero.
	MaxRetries int

	// BaseRetryDelay is the initial delay before the first retry.
	// Defaults to 500ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 5 seconds if zero.
	MaxRetryDelay time.Duration

	// PollInterval is the initial delay between settlement polls.
	// Defaults to 250ms if zero.
	PollInterval time.Duration

	// SettlementTimeout bounds how long a play may stay pending.
	// Defaults to 90 seconds if zero.
	SettlementTimeout time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 30s timeout.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string
}

// Client is a gateway client. It implements Gateway.
type Client struct {
	config Config
	http   *http.Client
	mu     sync.RWMutex
}

var _ Gateway = (*Client)(nil)

// NewClient creates a new gateway client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.SettlementTimeout == 0 {
		cfg.SettlementTimeout = 90 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		config: cfg,
		http:   httpClient,
	}
}

// SetAccessToken updates the access token (thread-safe).
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.AccessToken = token
}

// AccessToken returns the current access token (thread-safe).
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.AccessToken
}

// Endpoint returns the configured gateway endpoint.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// Creator returns the configured creator address.
func (c *Client) Creator() string {
	return c.config.Creator
}

// --- Gateway operations ---

// Connect opens the wallet session and returns the resulting state.
func (c *Client) Connect(ctx context.Context) (Snapshot, error) {
	return c.stateMutation(ctx, "v1/connect")
}

// Disconnect closes the wallet session.
func (c *Client) Disconnect(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "v1/disconnect", c.creatorBody())
	if err != nil {
		return err
	}
	if resp.HasError() {
		return resp.FirstError()
	}
	return nil
}

// CreateAccount creates the player's house account.
func (c *Client) CreateAccount(ctx context.Context) (Snapshot, error) {
	return c.stateMutation(ctx, "v1/account/create")
}

// CloseAccount closes the player's house account. Any unclaimed balance is forfeited.
func (c *Client) CloseAccount(ctx context.Context) (Snapshot, error) {
	return c.stateMutation(ctx, "v1/account/close")
}

// Withdraw claims the player's unclaimed balance into the wallet.
func (c *Client) Withdraw(ctx context.Context) (Snapshot, error) {
	return c.stateMutation(ctx, "v1/account/withdraw")
}

// Snapshot reads the current house, user and wallet state.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	resp, err := c.doRequestWithRetry(ctx, "v1/state", c.creatorBody())
	if err != nil {
		return Snapshot{}, err
	}
	return decodeState(resp)
}

// Play submits a bet. The returned handle polls the gateway for the settlement.
func (c *Client) Play(ctx context.Context, weights []int, lamports int64) (Handle, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("house: play requires a weight vector")
	}
	if lamports <= 0 {
		return nil, fmt.Errorf("house: play amount must be > 0, got %d", lamports)
	}

	resp, err := c.doRequest(ctx, "v1/play", playRequest{
		Creator:    c.config.Creator,
		Wager:      weights,
		Amount:     lamports,
		Identifier: PlayIdentifier(),
	})
	if err != nil {
		return nil, err
	}
	data, err := extractField(resp, "play")
	if err != nil {
		return nil, err
	}
	var p wirePlay
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("house: parse play: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("house: gateway accepted play without an id")
	}
	return &pendingPlay{client: c, id: p.ID}, nil
}

// fetchPlay reads the current status of a submitted play.
func (c *Client) fetchPlay(ctx context.Context, id string) (wirePlay, error) {
	resp, err := c.doRequestWithRetry(ctx, "v1/plays/"+url.PathEscape(id), c.creatorBody())
	if err != nil {
		return wirePlay{}, err
	}
	data, err := extractField(resp, "play")
	if err != nil {
		return wirePlay{}, err
	}
	var p wirePlay
	if err := json.Unmarshal(data, &p); err != nil {
		return wirePlay{}, fmt.Errorf("house: parse play status: %w", err)
	}
	return p, nil
}

func (c *Client) stateMutation(ctx context.Context, path string) (Snapshot, error) {
	resp, err := c.doRequest(ctx, path, c.creatorBody())
	if err != nil {
		return Snapshot{}, err
	}
	return decodeState(resp)
}

func (c *Client) creatorBody() map[string]any {
	return map[string]any{"creator": c.config.Creator}
}

func decodeState(resp *Response) (Snapshot, error) {
	data, err := extractField(resp, "state")
	if err != nil {
		return Snapshot{}, err
	}
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("house: parse state: %w", err)
	}
	return w.snapshot(), nil
}

// --- Core request methods ---

// doRequest sends a single POST request to the gateway and decodes the response.
func (c *Client) doRequest(ctx context.Context, path string, body any) (*Response, error) {
	base := c.config.Endpoint
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	target := fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimPrefix(path, "/"))

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("house: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("house: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("x-access-token", token)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("house: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("house: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "access token expired or invalid"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// Two envelope shapes are accepted: {"data": {...}} / {"errors": [...]}, or the
	// payload object itself, e.g. {"state": {...}}.
	var out Response
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("house: invalid response JSON: %w", err)
	}
	if errData, ok := envelope["errors"]; ok {
		if err := json.Unmarshal(errData, &out.Errors); err != nil {
			return nil, fmt.Errorf("house: invalid errors payload: %w", err)
		}
	}
	if dataField, ok := envelope["data"]; ok {
		out.Data = dataField
	} else if !out.HasError() {
		out.Data = respBody
	}

	return &out, nil
}

// doRequestWithRetry sends an idempotent request, retrying retryable failures
// with exponential backoff for at most MaxRetries extra attempts.
func (c *Client) doRequestWithRetry(ctx context.Context, path string, body any) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.BaseRetryDelay
	b.MaxInterval = c.config.MaxRetryDelay
	b.Multiplier = 2

	attempt := func() (*Response, error) {
		resp, err := c.doRequest(ctx, path, body)
		if err != nil {
			if IsRetryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if resp.HasError() && resp.FirstError().IsRetryable() {
			return nil, resp.FirstError()
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.config.MaxRetries+1)),
	)
	if err != nil {
		if IsRetryable(err) {
			return nil, fmt.Errorf("house: max retries exceeded: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

// extractField returns the JSON object stored under key, accepting both envelope
// shapes.
func extractField(resp *Response, key string) (json.RawMessage, error) {
	if resp.HasError() {
		return nil, resp.FirstError()
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &obj); err != nil {
		return nil, fmt.Errorf("house: invalid response payload: %w", err)
	}
	if v, ok := obj[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("house: response missing expected key %q", key)
}
