package creds

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name passwords are stored under.
const DefaultService = "safe"

// ErrNotInKeyring reports that the keyring holds no password for a name.
var ErrNotInKeyring = errors.New("password not in keyring")

// Keyring stores passwords in the OS keyring.
type Keyring struct {
	service string
}

// NewKeyring creates a keyring wrapper for service.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultService
	}
	return &Keyring{service: service}
}

// Save stores a password for name.
func (k *Keyring) Save(name string, password []byte) error {
	if len(password) == 0 {
		return fmt.Errorf("refusing to store an empty password")
	}
	if err := keyring.Set(k.service, name, string(password)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// Get retrieves the password for name.
func (k *Keyring) Get(name string) ([]byte, error) {
	pw, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotInKeyring
		}
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	return []byte(pw), nil
}

// Delete removes the password for name.
func (k *Keyring) Delete(name string) error {
	if err := keyring.Delete(k.service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotInKeyring
		}
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// Has checks if a password is stored for name.
func (k *Keyring) Has(name string) bool {
	_, err := keyring.Get(k.service, name)
	return err == nil
}
