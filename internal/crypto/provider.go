package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Errors
var (
	// ErrInvalidInput reports a caller mistake: empty password, unknown
	// algorithm name, nil buffer where one is required.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedContainer reports data that cannot be parsed as a
	// container.
	ErrMalformedContainer = errors.New("malformed container")

	// ErrAuthentication reports a failed tag check. Wrong passwords and
	// tampered containers are deliberately indistinguishable.
	ErrAuthentication = errors.New("authentication failed")
)

// PasswordCipher is the portable VaultCipher: a password-derived key
// (Argon2id by default) and an AEAD (AES-256-GCM by default).
type PasswordCipher struct {
	suite  CipherSuite
	kdf    KDF
	random io.Reader
}

// Option configures a PasswordCipher.
type Option func(*PasswordCipher)

// WithCipherSuite selects the AEAD used for new containers.
func WithCipherSuite(s CipherSuite) Option {
	return func(p *PasswordCipher) {
		p.suite = s
	}
}

// WithKDF selects the key derivation profile used for new containers.
func WithKDF(k KDF) Option {
	return func(p *PasswordCipher) {
		p.kdf = k
	}
}

// WithRandom replaces the source of salts and nonces. The reader must be
// safe for concurrent use if the cipher is shared.
func WithRandom(r io.Reader) Option {
	return func(p *PasswordCipher) {
		p.random = r
	}
}

// NewCipher creates a PasswordCipher.
func NewCipher(opts ...Option) *PasswordCipher {
	p := &PasswordCipher{
		suite:  SuiteAES256GCM,
		kdf:    KDFArgon2id,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewCipherFromNames creates a PasswordCipher from configuration names.
func NewCipherFromNames(cipherName, kdfName string) (*PasswordCipher, error) {
	suite, err := ParseCipherSuite(cipherName)
	if err != nil {
		return nil, err
	}
	kdf, err := ParseKDF(kdfName)
	if err != nil {
		return nil, err
	}
	return NewCipher(WithCipherSuite(suite), WithKDF(kdf)), nil
}

// Suite returns the cipher suite used for new containers.
func (p *PasswordCipher) Suite() CipherSuite {
	return p.suite
}

// KDF returns the key derivation profile used for new containers.
func (p *PasswordCipher) KDF() KDF {
	return p.kdf
}

// Encrypt seals plaintext. A nil plaintext is treated as empty.
func (p *PasswordCipher) Encrypt(plaintext, password []byte) (*Container, error) {
	if !p.suite.Valid() {
		return nil, fmt.Errorf("%w: unsupported cipher 0x%02x", ErrInvalidInput, uint8(p.suite))
	}
	if !p.kdf.Valid() {
		return nil, fmt.Errorf("%w: unsupported kdf 0x%02x", ErrInvalidInput, uint8(p.kdf))
	}

	normalized, err := preparePassword(password)
	if err != nil {
		return nil, err
	}
	defer Zero(normalized)

	c := &Container{
		Version: FormatVersion,
		Suite:   p.suite,
		KDF:     p.kdf,
	}

	// Fresh salt and nonce for every container
	if c.Salt, err = p.randomBytes(SaltSize); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if c.Nonce, err = p.randomBytes(NonceSize); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	key, err := deriveKey(c.KDF, normalized, c.Salt)
	if err != nil {
		return nil, err
	}
	defer key.wipe()

	aead, err := c.Suite.newAEAD(key)
	if err != nil {
		return nil, err
	}

	c.Ciphertext = aead.Seal(nil, c.Nonce, plaintext, c.header())

	return c, nil
}

// Decrypt verifies and opens a container.
func (p *PasswordCipher) Decrypt(c *Container, password []byte) ([]byte, error) {
	normalized, err := preparePassword(password)
	if err != nil {
		return nil, err
	}
	defer Zero(normalized)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	key, err := deriveKey(c.KDF, normalized, c.Salt)
	if err != nil {
		return nil, err
	}
	defer key.wipe()

	aead, err := c.Suite.newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, c.Nonce, c.Ciphertext, c.header())
	if err != nil {
		return nil, ErrAuthentication
	}
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}

// Seal encrypts plaintext and serializes the container.
func (p *PasswordCipher) Seal(plaintext, password []byte) ([]byte, error) {
	c, err := p.Encrypt(plaintext, password)
	if err != nil {
		return nil, err
	}
	return c.MarshalBinary()
}

// Open parses a serialized container and decrypts it.
func (p *PasswordCipher) Open(data, password []byte) ([]byte, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	c, err := ParseContainer(data)
	if err != nil {
		return nil, err
	}
	return p.Decrypt(c, password)
}

func (p *PasswordCipher) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(p.random, b); err != nil {
		return nil, err
	}
	return b, nil
}

// derivedKey lives only for one Encrypt or Decrypt call.
type derivedKey []byte

func (k derivedKey) wipe() {
	Zero(k)
}

func deriveKey(kdf KDF, password, salt []byte) (derivedKey, error) {
	key, err := kdf.DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	return derivedKey(key), nil
}

// preparePassword validates and normalizes a password. The caller owns the
// returned copy and should Zero it.
func preparePassword(password []byte) ([]byte, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	normalized := NormalizePassword(password)
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	return normalized, nil
}

func checkPassword(password []byte) error {
	if password == nil {
		return fmt.Errorf("%w: password is nil", ErrInvalidInput)
	}
	if len(password) == 0 {
		return fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	return nil
}
