// Package credentials stores the gateway access token per profile in the OS
// keychain, with a JSON file fallback for hosts without a keyring.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service name entries are filed under.
const DefaultService = "flip-go"

const partAccessToken = "access-token"

// ErrNotFound is returned when no token is stored for a profile.
var ErrNotFound = keyring.ErrNotFound

// backend is the subset of go-keyring used by KeyringStore.
type backend interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Set(service, user, secret string) error   { return keyring.Set(service, user, secret) }
func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

// KeyringStore wraps the OS keychain with an optional file fallback.
type KeyringStore struct {
	service      string
	fallbackPath string
	ring         backend
	mu           sync.Mutex
}

// NewKeyringStore creates a keyring wrapper. An empty fallbackPath disables the
// file fallback.
func NewKeyringStore(service, fallbackPath string) *KeyringStore {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &KeyringStore{
		service:      service,
		fallbackPath: fallbackPath,
		ring:         osKeyring{},
	}
}

func (k *KeyringStore) key(profile string) string {
	return profile + "/" + partAccessToken
}

// SetAccessToken stores token for profile.
func (k *KeyringStore) SetAccessToken(profile, token string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return fmt.Errorf("credentials: profile is required")
	}

	err := k.ring.Set(k.service, k.key(profile), token)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("credentials: keyring set: %w", err)
	}
	return k.setFallback(profile, token)
}

// AccessToken returns the token stored for profile, or ErrNotFound.
func (k *KeyringStore) AccessToken(profile string) (string, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", fmt.Errorf("credentials: profile is required")
	}

	val, err := k.ring.Get(k.service, k.key(profile))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("credentials: keyring get: %w", err)
	}

	fallback, ferr := k.getFallback(profile)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Delete removes the token for profile from the keychain and the fallback file.
func (k *KeyringStore) Delete(profile string) error {
	err := k.ring.Delete(k.service, k.key(profile))
	ferr := k.deleteFallback(profile)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("credentials: keyring delete: %w", err)
	}
	return ferr
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

// fallbackTokens maps profile to token.
type fallbackTokens map[string]string

func (k *KeyringStore) setFallback(profile, token string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("credentials: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[profile] = token
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) getFallback(profile string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", fmt.Errorf("credentials: fallback path not configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[profile]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (k *KeyringStore) deleteFallback(profile string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[profile]; !ok {
		return nil
	}
	delete(data, profile)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) readFallbackUnlocked() (fallbackTokens, error) {
	out := fallbackTokens{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("credentials: read fallback: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("credentials: decode fallback: %w", err)
	}
	return out, nil
}

func (k *KeyringStore) writeFallbackUnlocked(data fallbackTokens) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("credentials: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("credentials: encode fallback: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("credentials: write fallback: %w", err)
	}
	return nil
}
