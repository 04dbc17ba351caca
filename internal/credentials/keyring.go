// Package credentials keeps the terminal client's refresh token in the
// system keyring so sign-in survives restarts.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "opsdash"

// ErrNoToken is returned when no refresh token is stored for the server.
var ErrNoToken = errors.New("credentials: no stored refresh token")

// Store reads and writes refresh tokens keyed by server URL.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store over the first available system backend, falling
// back to an encrypted file under fileDir.
func Open(fileDir string) (*Store, error) {
	if strings.TrimSpace(fileDir) == "" {
		fileDir = "~/.config/opsdash/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("opsdash-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New wraps an existing keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// RefreshToken returns the token stored for server.
func (s *Store) RefreshToken(server string) (string, error) {
	item, err := s.ring.Get(key(server))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting refresh token: %w", err)
	}
	if len(item.Data) == 0 {
		return "", ErrNoToken
	}
	return string(item.Data), nil
}

// SaveRefreshToken stores token for server. An empty token removes the entry.
func (s *Store) SaveRefreshToken(server, token string) error {
	if token == "" {
		return s.Forget(server)
	}
	err := s.ring.Set(keyring.Item{
		Key:         key(server),
		Data:        []byte(token),
		Label:       "opsdash refresh token",
		Description: "Refresh token for " + normalise(server),
	})
	if err != nil {
		return fmt.Errorf("setting refresh token: %w", err)
	}
	return nil
}

// Forget removes the token for server. Forgetting a missing token is not an
// error.
func (s *Store) Forget(server string) error {
	err := s.ring.Remove(key(server))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

func key(server string) string {
	return "refresh:" + normalise(server)
}

func normalise(server string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(server)), "/")
}
