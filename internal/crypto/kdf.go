package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// KDF identifies a key derivation profile. The work factor of each profile
// is fixed by the format version and never read from the container, so a
// crafted file cannot ask for unbounded memory or time.
type KDF uint8

const (
	// KDFArgon2id is the default profile: memory-hard Argon2id.
	KDFArgon2id KDF = 0x01

	// KDFScrypt uses scrypt, the other memory-hard option.
	KDFScrypt KDF = 0x02

	// KDFPBKDF2 uses PBKDF2-HMAC-SHA256 for environments where memory is
	// scarce.
	KDFPBKDF2 KDF = 0x03
)

// Argon2id parameters (RFC 9106 second recommended option, reduced memory)
const (
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 4
)

// Scrypt parameters
const (
	ScryptN = 32768 // CPU/memory cost parameter
	ScryptR = 8     // block size parameter
	ScryptP = 1     // parallelization parameter
)

// PBKDF2Iterations follows the OWASP recommendation for HMAC-SHA256.
const PBKDF2Iterations = 600000

var kdfNames = map[KDF]string{
	KDFArgon2id: "argon2id",
	KDFScrypt:   "scrypt",
	KDFPBKDF2:   "pbkdf2-sha256",
}

// String returns the profile name used in configuration.
func (k KDF) String() string {
	if name, ok := kdfNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kdf(0x%02x)", uint8(k))
}

// Valid reports whether k is a known profile.
func (k KDF) Valid() bool {
	_, ok := kdfNames[k]
	return ok
}

// ParseKDF maps a configuration name to a profile.
func ParseKDF(name string) (KDF, error) {
	for id, n := range kdfNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kdf %q", ErrInvalidInput, name)
}

// DeriveKey derives a KeySize-byte key from an already normalized password.
func (k KDF) DeriveKey(password, salt []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt too short: %d bytes", ErrInvalidInput, len(salt))
	}

	switch k {
	case KDFArgon2id:
		return argon2.IDKey(password, salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize), nil

	case KDFScrypt:
		key, err := scrypt.Key(password, salt, ScryptN, ScryptR, ScryptP, KeySize)
		if err != nil {
			return nil, fmt.Errorf("scrypt key derivation: %w", err)
		}
		return key, nil

	case KDFPBKDF2:
		return pbkdf2.Key(password, salt, PBKDF2Iterations, KeySize, sha256.New), nil

	default:
		return nil, fmt.Errorf("%w: unsupported kdf 0x%02x", ErrMalformedContainer, uint8(k))
	}
}
