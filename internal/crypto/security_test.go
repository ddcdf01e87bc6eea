package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/crypto"
)

func TestSecurityRequirements(t *testing.T) {
	c := crypto.NewCipher()
	password := []byte("correct-horse")
	plaintext := []byte("sensitive data that must stay private")

	t.Run("key size is 256 bits", func(t *testing.T) {
		assert.Equal(t, 32, crypto.KeySize)
	})

	t.Run("work factors are not trivially low", func(t *testing.T) {
		assert.GreaterOrEqual(t, crypto.Argon2Memory, 64*1024)
		assert.GreaterOrEqual(t, crypto.ScryptN, 1<<15)
		assert.GreaterOrEqual(t, crypto.PBKDF2Iterations, 600000)
	})

	t.Run("salt and nonce are fresh for each encryption", func(t *testing.T) {
		first, err := c.Encrypt(plaintext, password)
		require.NoError(t, err)
		second, err := c.Encrypt(plaintext, password)
		require.NoError(t, err)

		assert.NotEqual(t, first.Salt, second.Salt)
		assert.NotEqual(t, first.Nonce, second.Nonce)
		assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

		for _, container := range []*crypto.Container{first, second} {
			decrypted, err := c.Decrypt(container, password)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		}
	})

	t.Run("ciphertext does not contain plaintext", func(t *testing.T) {
		sealed, err := c.Seal(plaintext, password)
		require.NoError(t, err)

		assert.NotContains(t, string(sealed), string(plaintext))
		assert.NotContains(t, string(sealed), string(password))
	})
}

func TestTamperDetection(t *testing.T) {
	c := crypto.NewCipher()
	password := []byte("tamper-proof")

	sealed, err := c.Seal([]byte("the quick brown fox jumps over the lazy dog"), password)
	require.NoError(t, err)

	regions := []struct {
		name   string
		offset int
	}{
		{"salt start", 3},
		{"salt end", 3 + crypto.SaltSize - 1},
		{"nonce start", 3 + crypto.SaltSize},
		{"nonce end", crypto.HeaderSize - 1},
		{"ciphertext body", crypto.HeaderSize + 5},
		{"tag start", len(sealed) - crypto.TagSize},
		{"tag end", len(sealed) - 1},
	}

	for _, region := range regions {
		for _, bit := range []uint{0, 3, 7} {
			tampered := append([]byte(nil), sealed...)
			tampered[region.offset] ^= 1 << bit

			plaintext, err := c.Open(tampered, password)
			assert.ErrorIs(t, err, crypto.ErrAuthentication, "%s bit %d", region.name, bit)
			assert.Nil(t, plaintext)
		}
	}
}

func TestHeaderTampering(t *testing.T) {
	c := crypto.NewCipher()
	password := []byte("header-check")

	sealed, err := c.Seal([]byte("payload"), password)
	require.NoError(t, err)

	t.Run("unknown version", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[0] = 0x02

		_, err := c.Open(tampered, password)
		assert.ErrorIs(t, err, crypto.ErrMalformedContainer)
	})

	t.Run("swapped cipher suite", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[1] = byte(crypto.SuiteChaCha20Poly1305)

		// Both suites are valid, so only the tag can catch it
		_, err := c.Open(tampered, password)
		assert.ErrorIs(t, err, crypto.ErrAuthentication)
	})

	t.Run("swapped kdf profile", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[2] = byte(crypto.KDFPBKDF2)

		_, err := c.Open(tampered, password)
		assert.ErrorIs(t, err, crypto.ErrAuthentication)
	})

	t.Run("unknown kdf profile", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[2] = 0xee

		_, err := c.Open(tampered, password)
		assert.ErrorIs(t, err, crypto.ErrMalformedContainer)
	})
}

func TestTruncation(t *testing.T) {
	c := crypto.NewCipher()
	password := []byte("truncate-me")

	sealed, err := c.Seal([]byte("some bytes worth keeping"), password)
	require.NoError(t, err)

	t.Run("one byte short fails authentication", func(t *testing.T) {
		_, err := c.Open(sealed[:len(sealed)-1], password)
		assert.ErrorIs(t, err, crypto.ErrAuthentication)
	})

	t.Run("extra trailing byte fails authentication", func(t *testing.T) {
		extended := append(append([]byte(nil), sealed...), 0x00)
		_, err := c.Open(extended, password)
		assert.ErrorIs(t, err, crypto.ErrAuthentication)
	})

	t.Run("shorter than minimum is malformed", func(t *testing.T) {
		for _, n := range []int{0, 1, crypto.HeaderSize, crypto.MinContainerSize - 1} {
			_, err := c.Open(sealed[:n], password)
			assert.ErrorIs(t, err, crypto.ErrMalformedContainer, "length %d", n)
		}
	})
}

func TestPasswordCheckPrecedesParsing(t *testing.T) {
	// An empty password is reported as invalid input even for garbage data
	_, err := crypto.Open([]byte("garbage"), []byte{})
	assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	assert.NotErrorIs(t, err, crypto.ErrMalformedContainer)
}
