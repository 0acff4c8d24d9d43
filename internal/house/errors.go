package house

import (
	"errors"
	"fmt"
	"strings"
)

// APIError represents an error returned by the gateway.
type APIError struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("house: %s: %s", e.ErrorType, e.Message)
}

// Error types reported by the gateway.
const (
	ErrTypeParallelPlay        = "parallelPlay"
	ErrTypeAccountNotFound     = "accountNotFound"
	ErrTypeInsufficientBalance = "insufficientBalance"
	ErrTypeMaxPayoutExceeded   = "maxPayoutExceeded"
	ErrTypeUserRejected        = "userRejected"
	ErrTypeNotConnected        = "notConnected"
)

// IsParallelPlay returns true if another play is still being processed for the account.
func (e *APIError) IsParallelPlay() bool {
	return strings.Contains(e.ErrorType, ErrTypeParallelPlay)
}

// IsAccountNotFound returns true if the connected identity has no house account.
func (e *APIError) IsAccountNotFound() bool {
	return strings.Contains(e.ErrorType, ErrTypeAccountNotFound)
}

// IsInsufficientBalance returns true if the wallet cannot fund the request.
func (e *APIError) IsInsufficientBalance() bool {
	return strings.Contains(e.ErrorType, ErrTypeInsufficientBalance)
}

// IsMaxPayoutExceeded returns true if the house refused the wager size.
func (e *APIError) IsMaxPayoutExceeded() bool {
	return strings.Contains(e.ErrorType, ErrTypeMaxPayoutExceeded)
}

// IsUserRejected returns true if the wallet holder declined to sign.
func (e *APIError) IsUserRejected() bool {
	return strings.Contains(e.ErrorType, ErrTypeUserRejected)
}

// IsRetryable returns true for transient gateway conditions. Only idempotent reads
// are ever retried.
func (e *APIError) IsRetryable() bool {
	return e.IsParallelPlay()
}

// HTTPError represents a non-200 HTTP response from the gateway.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("house: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limits (429) and server errors (5xx).
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AuthError indicates the access token was missing, expired or invalid.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("house: authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// SettlementError is returned by Handle.Result when the gateway reports that a play
// failed to settle.
type SettlementError struct {
	PlayID string
	Reason string
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("house: play %s failed to settle: %s", e.PlayID, e.Reason)
}

// ErrSettlementTimeout is returned when a play is still pending after the configured
// settlement timeout.
var ErrSettlementTimeout = errors.New("house: settlement timed out")

// IsRetryable classifies any error returned by the client.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}

// Reason returns a short machine-friendly label for err, used for logs and metrics.
func Reason(err error) string {
	var apiErr *APIError
	var httpErr *HTTPError
	var authErr *AuthError
	var settleErr *SettlementError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSettlementTimeout):
		return "timeout"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &settleErr):
		return "settlement"
	case errors.As(err, &apiErr):
		if apiErr.ErrorType == "" {
			return "api"
		}
		return apiErr.ErrorType
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	default:
		return "transport"
	}
}
