package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/99designs/keyring"

	"github.com/covoit/carpool-sdk/internal/log"
)

// KeyringService is the service name under which tokens are stored in the system keyring.
const KeyringService = "com.covoit.carpool"

// Keyring is a Store backed by the operating system's credential store, or an encrypted file when
// no credential store is available.
type Keyring struct {
	ring    keyring.Keyring
	profile string
}

// NewKeyring returns a Store that keeps values in ring. Keys are namespaced by profile so that
// several accounts can share a keyring.
func NewKeyring(ring keyring.Keyring, profile string) *Keyring {
	if profile == "" {
		profile = "default"
	}
	return &Keyring{ring: ring, profile: profile}
}

func (k *Keyring) itemKey(key string) string {
	return k.profile + "." + key
}

func notFound(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist)
}

func (k *Keyring) Get(key string) (string, bool, error) {
	item, err := k.ring.Get(k.itemKey(key))
	if notFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("could not load %s: %w", key, err)
	}
	value, ok, err := open(item.Data)
	if err != nil {
		return "", false, fmt.Errorf("could not decode %s: %w", key, err)
	}
	if !ok {
		log.Debug("Stored %s expired", key)
		if err := k.Remove(key); err != nil {
			log.Warning("Failed to remove expired %s: %s", key, err)
		}
	}
	return value, ok, nil
}

func (k *Keyring) Set(key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	data, err := seal(value, ttl)
	if err != nil {
		return err
	}
	if err := k.ring.Set(keyring.Item{
		Key:         k.itemKey(key),
		Data:        data,
		Label:       "Carpool " + key,
		Description: "carpool session token",
	}); err != nil {
		return fmt.Errorf("failed to save %s in keyring: %w", key, err)
	}
	return nil
}

func (k *Keyring) Remove(key string) error {
	if err := k.ring.Remove(k.itemKey(key)); err != nil && !notFound(err) {
		return fmt.Errorf("failed to remove %s from keyring: %w", key, err)
	}
	return nil
}
