package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const keyringService = "lnsync"

// secretStore abstracts the OS keyring for testing.
type secretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// keyringStore reads and writes secrets in the OS keyring, keyed by the
// dotted config key (for example "notion.api_key").
type keyringStore struct{}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(filepath.Dir(configFilePath()), "credentials"),
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// filePassword unlocks the encrypted file backend. It is only consulted on
// hosts with no native keyring.
func filePassword(string) (string, error) {
	if p := os.Getenv("LNSYNC_KEYRING_PASSWORD"); p != "" {
		return p, nil
	}
	return keyringService + "-file-key", nil
}

func (keyringStore) Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", key, err)
	}
	return string(item.Data), nil
}

func (keyringStore) Set(key, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: "lnsync " + key}); err != nil {
		return fmt.Errorf("setting secret %q: %w", key, err)
	}
	return nil
}
