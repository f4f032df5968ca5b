package secret

import (
	"fmt"
	"os"
	"strings"
)

// SecretStore provides a pluggable interface for storing sensitive data
// such as the destination database password. Jobs reference a secret by
// key; the value never lands in the config file.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// EnvPrefix is prepended to the upper-cased key by EnvStore.
const EnvPrefix = "SHEETSYNC_SECRET_"

// EnvStore reads secrets from environment variables:
// key "prod-db" → SHEETSYNC_SECRET_PROD_DB.
type EnvStore struct{}

// NewEnvStore creates a new EnvStore.
func NewEnvStore() *EnvStore { return &EnvStore{} }

// EnvName returns the variable EnvStore consults for key.
func EnvName(key string) string {
	k := strings.ToUpper(key)
	k = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, k)
	return EnvPrefix + k
}

func (e *EnvStore) Set(key string, value []byte) error {
	return os.Setenv(EnvName(key), string(value))
}

func (e *EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(EnvName(key))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Delete(key string) error {
	return os.Unsetenv(EnvName(key))
}

// ChainStore reads from each store in order and returns the first hit.
// Writes go to the first store.
type ChainStore []SecretStore

func (c ChainStore) Set(key string, value []byte) error {
	if len(c) == 0 {
		return fmt.Errorf("no secret store configured")
	}
	return c[0].Set(key, value)
}

func (c ChainStore) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

func (c ChainStore) Delete(key string) error {
	for _, s := range c {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the secret stored under key, or an error when it is
// missing.
func Resolve(store SecretStore, key string) (string, error) {
	v, err := store.Get(key)
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", key, err)
	}
	if len(v) == 0 {
		return "", fmt.Errorf("secret %q not found (set %s or add it to the keychain)", key, EnvName(key))
	}
	return string(v), nil
}
