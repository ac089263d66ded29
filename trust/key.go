// Package trust implements the signed policy document layer: a per-device
// signing key, manifest signing and verification, and the security block
// injected into every session.
package trust

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeySize is the device key length in bytes.
const KeySize = 32

// DeviceKey is the per-device secret used to key the manifest signature.
// It never leaves the machine; a document signed on one device does not
// verify on another.
type DeviceKey struct {
	bytes [KeySize]byte
}

// Bytes returns the raw key material.
func (k *DeviceKey) Bytes() []byte {
	return k.bytes[:]
}

// DefaultKeyPath returns ~/.warden/device.key.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".warden", "device.key"), nil
}

// LoadOrCreateKey reads the device key at path, generating and persisting
// a fresh one on first use. The key file and its directory are created
// with owner-only permissions.
func LoadOrCreateKey(path string) (*DeviceKey, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != KeySize {
			return nil, fmt.Errorf("device key %s has %d bytes, want %d", path, len(data), KeySize)
		}
		var k DeviceKey
		copy(k.bytes[:], data)
		return &k, nil
	case errors.Is(err, os.ErrNotExist):
		return generateKey(path)
	default:
		return nil, fmt.Errorf("read device key: %w", err)
	}
}

func generateKey(path string) (*DeviceKey, error) {
	var k DeviceKey
	if _, err := rand.Read(k.bytes[:]); err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	// Write-then-rename so a crash never leaves a short key on disk.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, k.bytes[:], 0o600); err != nil {
		return nil, fmt.Errorf("write device key: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("persist device key: %w", err)
	}
	return &k, nil
}
