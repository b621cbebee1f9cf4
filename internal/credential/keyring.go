package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "studiosync"

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/studiosync/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("studiosync-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringSource looks secrets up in the OS keyring under the same key names
// used for environment variables (e.g. IMAP_PASS_MONTSE).
type KeyringSource struct {
	ring keyring.Keyring
}

// NewKeyringSource opens the system keyring.
func NewKeyringSource() (*KeyringSource, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &KeyringSource{ring: ring}, nil
}

// NewKeyringSourceWith wraps an already opened keyring.
func NewKeyringSourceWith(ring keyring.Keyring) *KeyringSource {
	return &KeyringSource{ring: ring}
}

// Lookup implements Source. Missing keys and backend failures both read as
// absent.
func (k *KeyringSource) Lookup(key string) (string, bool) {
	item, err := k.ring.Get(key)
	if err != nil {
		return "", false
	}
	if len(item.Data) == 0 {
		return "", false
	}
	return string(item.Data), true
}

// Set stores a secret under key.
func (k *KeyringSource) Set(key string, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a secret by key. Removing an absent key is not an error.
func (k *KeyringSource) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
