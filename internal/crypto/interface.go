package crypto

// VaultCipher turns plaintext into a self-describing encrypted container
// and back. Implementations hold no state between calls and are safe for
// concurrent use.
type VaultCipher interface {
	// Encrypt seals plaintext under a key derived from password and a
	// fresh salt. Nothing is written anywhere.
	Encrypt(plaintext, password []byte) (*Container, error)

	// Decrypt verifies and opens a container. It returns ErrAuthentication
	// for a wrong password or a tampered container and never returns
	// partial plaintext.
	Decrypt(c *Container, password []byte) ([]byte, error)
}
