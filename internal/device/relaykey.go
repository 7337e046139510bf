package device

import (
	"os"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "clipbridge"
	keyringUser    = "relay-api-key"

	// RelayKeyEnv overrides the keyring for headless hosts.
	RelayKeyEnv = "CLIPBRIDGE_RELAY_KEY"
)

// RelayKey resolves the relay API key: OS keyring first, then the
// environment, then the config value. Empty means the relay is used
// unauthenticated.
func RelayKey(configKey string) string {
	if v, err := keyring.Get(keyringService, keyringUser); err == nil && v != "" {
		return v
	}
	if v := os.Getenv(RelayKeyEnv); v != "" {
		return v
	}
	return configKey
}

// StoreRelayKey writes the relay API key into the OS keyring.
func StoreRelayKey(key string) error {
	return keyring.Set(keyringService, keyringUser, key)
}

// ClearRelayKey removes the relay API key from the OS keyring. A missing
// entry is not an error.
func ClearRelayKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

// RelayKeySource reports where RelayKey would find its value, for
// diagnostics output.
func RelayKeySource(configKey string) string {
	if v, err := keyring.Get(keyringService, keyringUser); err == nil && v != "" {
		return "keyring"
	}
	if os.Getenv(RelayKeyEnv) != "" {
		return "environment"
	}
	if configKey != "" {
		return "config"
	}
	return "unset"
}
