package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite identifies the authenticated cipher of a container.
type CipherSuite uint8

const (
	// SuiteAES256GCM is AES-256 in Galois/Counter Mode (default).
	SuiteAES256GCM CipherSuite = 0x01

	// SuiteChaCha20Poly1305 is the RFC 8439 AEAD, faster on hardware
	// without AES instructions.
	SuiteChaCha20Poly1305 CipherSuite = 0x02
)

var suiteNames = map[CipherSuite]string{
	SuiteAES256GCM:        "aes-256-gcm",
	SuiteChaCha20Poly1305: "chacha20-poly1305",
}

// String returns the suite name used in configuration.
func (s CipherSuite) String() string {
	if name, ok := suiteNames[s]; ok {
		return name
	}
	return fmt.Sprintf("cipher(0x%02x)", uint8(s))
}

// Valid reports whether s is a known suite.
func (s CipherSuite) Valid() bool {
	_, ok := suiteNames[s]
	return ok
}

// ParseCipherSuite maps a configuration name to a suite.
func ParseCipherSuite(name string) (CipherSuite, error) {
	for id, n := range suiteNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown cipher %q", ErrInvalidInput, name)
}

// newAEAD creates the AEAD for a KeySize-byte key. Both suites use a
// NonceSize nonce and a TagSize tag.
func (s CipherSuite) newAEAD(key []byte) (cipher.AEAD, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}

	switch s {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}

		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create GCM: %w", err)
		}
		return aead, nil

	case SuiteChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("create chacha20-poly1305: %w", err)
		}
		return aead, nil

	default:
		return nil, fmt.Errorf("%w: unsupported cipher 0x%02x", ErrMalformedContainer, uint8(s))
	}
}

// ValidateKeySize checks if the key is the correct size.
func ValidateKeySize(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}
	return nil
}
