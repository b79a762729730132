package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// keyringPassphrases stores container passphrases in the OS keyring, with an
// in-memory cache so sync passes do not hit the keyring on every file. The
// cache holds only passphrases already read or written during this process
// lifetime.
type keyringPassphrases struct {
	service string

	mu    sync.RWMutex
	cache map[string]string
}

// NewKeyringPassphrases constructs a [PassphraseStore] backed by the OS
// keyring under the given service name.
func NewKeyringPassphrases(service string) PassphraseStore {
	return &keyringPassphrases{
		service: service,
		cache:   make(map[string]string),
	}
}

// Get implements [PassphraseStore]. Returns ErrPassphraseNotSet when neither
// the cache nor the keyring holds a passphrase for containerID.
func (k *keyringPassphrases) Get(containerID string) (string, error) {
	k.mu.RLock()
	if p, ok := k.cache[containerID]; ok {
		k.mu.RUnlock()
		return p, nil
	}
	k.mu.RUnlock()

	p, err := keyring.Get(k.service, containerID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: container %s", ErrPassphraseNotSet, containerID)
		}
		return "", fmt.Errorf("read keyring: %w", err)
	}

	k.mu.Lock()
	k.cache[containerID] = p
	k.mu.Unlock()
	return p, nil
}

// Set implements [PassphraseStore].
func (k *keyringPassphrases) Set(containerID, passphrase string) error {
	if err := keyring.Set(k.service, containerID, passphrase); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}

	k.mu.Lock()
	k.cache[containerID] = passphrase
	k.mu.Unlock()
	return nil
}

// Forget implements [PassphraseStore]. Forgetting an absent passphrase is a
// no-op.
func (k *keyringPassphrases) Forget(containerID string) error {
	k.mu.Lock()
	delete(k.cache, containerID)
	k.mu.Unlock()

	if err := keyring.Delete(k.service, containerID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete from keyring: %w", err)
	}
	return nil
}

// Available implements [PassphraseStore].
func (k *keyringPassphrases) Available(containerID string) bool {
	_, err := k.Get(containerID)
	return err == nil
}

// MemoryPassphrases is an in-memory [PassphraseStore] for tests and for
// running without an OS keyring.
type MemoryPassphrases struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryPassphrases() *MemoryPassphrases {
	return &MemoryPassphrases{items: make(map[string]string)}
}

func (m *MemoryPassphrases) Get(containerID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.items[containerID]
	if !ok {
		return "", fmt.Errorf("%w: container %s", ErrPassphraseNotSet, containerID)
	}
	return p, nil
}

func (m *MemoryPassphrases) Set(containerID, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[containerID] = passphrase
	return nil
}

func (m *MemoryPassphrases) Forget(containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, containerID)
	return nil
}

func (m *MemoryPassphrases) Available(containerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[containerID]
	return ok
}
