// Package security guards the ledger: a bcrypt-hashed PIN for the lock
// screen and an AES-GCM transform for backups leaving the device.
package security

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"pocketledger/internal/storage"
)

const minPINLength = 4

var ErrInvalidPIN = errors.New("pin must be at least 4 digits")

// PINVault stores a single PIN hash under storage.KeyPIN.
type PINVault struct {
	backend storage.Backend
	cost    int
}

type VaultOption func(*PINVault)

// WithBcryptCost lowers or raises the hashing cost.
func WithBcryptCost(cost int) VaultOption {
	return func(v *PINVault) { v.cost = cost }
}

func NewPINVault(backend storage.Backend, opts ...VaultOption) *PINVault {
	v := &PINVault{backend: backend, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func validatePIN(pin string) error {
	if len(pin) < minPINLength {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	return nil
}

func (v *PINVault) HasPIN(ctx context.Context) (bool, error) {
	_, err := v.backend.Get(ctx, storage.KeyPIN)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return true, nil
}

// SetPIN replaces any existing PIN.
func (v *PINVault) SetPIN(ctx context.Context, pin string) error {
	if err := validatePIN(pin); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), v.cost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := v.backend.Put(ctx, storage.KeyPIN, hash); err != nil {
		return fmt.Errorf("store pin: %w", err)
	}
	return nil
}

// CheckPIN reports false when no PIN is set.
func (v *PINVault) CheckPIN(ctx context.Context, pin string) (bool, error) {
	hash, err := v.backend.Get(ctx, storage.KeyPIN)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(pin)); err != nil {
		return false, nil
	}
	return true, nil
}

func (v *PINVault) ClearPIN(ctx context.Context) error {
	if err := v.backend.Delete(ctx, storage.KeyPIN); err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}
