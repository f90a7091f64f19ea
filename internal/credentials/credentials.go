// Package credentials implements the CredentialStore abstraction with
// two interchangeable backends: the OS keyring (zalando/go-keyring)
// and an in-memory store for tests and headless environments. Account
// naming is "provider:<name>" under a single service identifier so
// that keys of different providers never collide.
package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Get when no key is stored for a provider.
var ErrNotFound = errors.New("credentials: key not found")

// Store is the uniform trait both backends implement.
type Store interface {
	StoreKey(provider, apiKey string) error
	GetKey(provider string) (string, error)
	DeleteKey(provider string) error
	HasKey(provider string) (bool, error)
}

func accountName(provider string) string {
	return fmt.Sprintf("provider:%s", provider)
}

// KeyringStore persists credentials in the OS-native keyring under a
// single service identifier.
type KeyringStore struct {
	service string
}

// NewKeyringStore constructs a KeyringStore scoped to service.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (k *KeyringStore) StoreKey(provider, apiKey string) error {
	if err := keyring.Set(k.service, accountName(provider), apiKey); err != nil {
		return fmt.Errorf("credentials: keyring store: %w", err)
	}
	return nil
}

func (k *KeyringStore) GetKey(provider string) (string, error) {
	value, err := keyring.Get(k.service, accountName(provider))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("credentials: keyring get: %w", err)
	}
	return value, nil
}

func (k *KeyringStore) DeleteKey(provider string) error {
	if err := keyring.Delete(k.service, accountName(provider)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("credentials: keyring delete: %w", err)
	}
	return nil
}

func (k *KeyringStore) HasKey(provider string) (bool, error) {
	_, err := k.GetKey(provider)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// MemoryStore is an in-memory CredentialStore for tests and
// environments with no OS keyring (containers, CI).
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemoryStore constructs an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (m *MemoryStore) StoreKey(provider, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[accountName(provider)] = apiKey
	return nil
}

func (m *MemoryStore) GetKey(provider string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.keys[accountName(provider)]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) DeleteKey(provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, accountName(provider))
	return nil
}

func (m *MemoryStore) HasKey(provider string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[accountName(provider)]
	return ok, nil
}
