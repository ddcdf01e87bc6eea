package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/text/unicode/norm"
)

// NormalizePassword returns the NFKC form of password in a new slice, so a
// passphrase typed on different keyboards or platforms derives the same key.
func NormalizePassword(password []byte) []byte {
	return norm.NFKC.Append(make([]byte, 0, len(password)), password...)
}

// Zero overwrites b with zeros. Go may keep other copies of the data, so
// this is best effort.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeEqual performs a constant-time comparison of two byte slices.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomBytes generates n random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("generate random bytes: %w", err)
	}
	return b, nil
}

// Seal encrypts plaintext with the default cipher and returns the
// serialized container.
func Seal(plaintext, password []byte) ([]byte, error) {
	return NewCipher().Seal(plaintext, password)
}

// Open decrypts a serialized container. The container names its own cipher
// and KDF, so any PasswordCipher can open it.
func Open(data, password []byte) ([]byte, error) {
	return NewCipher().Open(data, password)
}
