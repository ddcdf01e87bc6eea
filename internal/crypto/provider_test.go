package crypto_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/crypto"
)

func TestPasswordCipher_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		suite     crypto.CipherSuite
		kdf       crypto.KDF
		plaintext []byte
		password  string
	}{
		{"empty plaintext", crypto.SuiteAES256GCM, crypto.KDFArgon2id, []byte{}, "correct-horse"},
		{"short text", crypto.SuiteAES256GCM, crypto.KDFArgon2id, []byte("hello, vault"), "battery-staple"},
		{"chacha with scrypt", crypto.SuiteChaCha20Poly1305, crypto.KDFScrypt, []byte("chacha payload"), "p@ss"},
		{"gcm with pbkdf2", crypto.SuiteAES256GCM, crypto.KDFPBKDF2, []byte("pbkdf2 payload"), "p@ss"},
		{"unicode password", crypto.SuiteChaCha20Poly1305, crypto.KDFArgon2id, []byte("данные"), "пароль123"},
		{"binary payload", crypto.SuiteAES256GCM, crypto.KDFArgon2id, []byte{0x00, 0xff, 0x00, 0x7f}, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := crypto.NewCipher(crypto.WithCipherSuite(tt.suite), crypto.WithKDF(tt.kdf))

			container, err := c.Encrypt(tt.plaintext, []byte(tt.password))
			require.NoError(t, err)

			assert.Equal(t, crypto.FormatVersion, container.Version)
			assert.Equal(t, tt.suite, container.Suite)
			assert.Equal(t, tt.kdf, container.KDF)
			assert.Len(t, container.Salt, crypto.SaltSize)
			assert.Len(t, container.Nonce, crypto.NonceSize)
			assert.Len(t, container.Ciphertext, len(tt.plaintext)+crypto.TagSize)

			decrypted, err := c.Decrypt(container, []byte(tt.password))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.plaintext, decrypted))
		})
	}
}

func TestPasswordCipher_EmptyPlaintextScenario(t *testing.T) {
	c := crypto.NewCipher()

	sealed, err := c.Seal(nil, []byte("correct-horse"))
	require.NoError(t, err)
	assert.Len(t, sealed, crypto.MinContainerSize)

	plaintext, err := c.Open(sealed, []byte("correct-horse"))
	require.NoError(t, err)
	assert.NotNil(t, plaintext)
	assert.Empty(t, plaintext)
}

func TestPasswordCipher_LargeFileScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10MB round trip in short mode")
	}

	plaintext := make([]byte, 10*1024*1024)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	c := crypto.NewCipher()

	sealed, err := c.Seal(plaintext, []byte("battery-staple"))
	require.NoError(t, err)

	decrypted, err := c.Open(sealed, []byte("battery-staple"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, decrypted))

	decrypted, err = c.Open(sealed, []byte("wrong"))
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
	assert.Nil(t, decrypted)
}

func TestPasswordCipher_WrongPassword(t *testing.T) {
	c := crypto.NewCipher()

	container, err := c.Encrypt([]byte("secret message"), []byte("password-one"))
	require.NoError(t, err)

	for _, wrong := range []string{"password-two", "password-on", "password-one ", "PASSWORD-ONE"} {
		plaintext, err := c.Decrypt(container, []byte(wrong))
		assert.ErrorIs(t, err, crypto.ErrAuthentication, "password %q", wrong)
		assert.Nil(t, plaintext)
	}
}

func TestPasswordCipher_DecryptIsDeterministic(t *testing.T) {
	c := crypto.NewCipher(crypto.WithKDF(crypto.KDFScrypt))
	password := []byte("same-every-time")

	container, err := c.Encrypt([]byte("stable output"), password)
	require.NoError(t, err)

	first, err := c.Decrypt(container, password)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := c.Decrypt(container, password)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPasswordCipher_DecryptUsesContainerAlgorithms(t *testing.T) {
	// A cipher configured for other defaults still opens any container
	sealer := crypto.NewCipher(crypto.WithCipherSuite(crypto.SuiteChaCha20Poly1305), crypto.WithKDF(crypto.KDFScrypt))
	opener := crypto.NewCipher()

	sealed, err := sealer.Seal([]byte("portable"), []byte("pw"))
	require.NoError(t, err)

	plaintext, err := opener.Open(sealed, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("portable"), plaintext)

	plaintext, err = crypto.Open(sealed, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("portable"), plaintext)
}

func TestPasswordCipher_PasswordNormalization(t *testing.T) {
	// "é" precomposed (U+00E9) and decomposed (e + U+0301) derive the same key
	composed := []byte("caf\u00e9")
	decomposed := []byte("cafe\u0301")

	sealed, err := crypto.Seal([]byte("croissant"), composed)
	require.NoError(t, err)

	plaintext, err := crypto.Open(sealed, decomposed)
	require.NoError(t, err)
	assert.Equal(t, []byte("croissant"), plaintext)
}

func TestPasswordCipher_InvalidInput(t *testing.T) {
	c := crypto.NewCipher()

	t.Run("nil password", func(t *testing.T) {
		_, err := c.Encrypt([]byte("data"), nil)
		assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := c.Encrypt([]byte("data"), []byte{})
		assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	})

	t.Run("empty password on decrypt", func(t *testing.T) {
		container, err := c.Encrypt([]byte("data"), []byte("pw"))
		require.NoError(t, err)

		_, err = c.Decrypt(container, []byte(""))
		assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	})

	t.Run("unknown suite", func(t *testing.T) {
		bad := crypto.NewCipher(crypto.WithCipherSuite(crypto.CipherSuite(0x7f)))
		_, err := bad.Encrypt([]byte("data"), []byte("pw"))
		assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	})

	t.Run("unknown kdf", func(t *testing.T) {
		bad := crypto.NewCipher(crypto.WithKDF(crypto.KDF(0)))
		_, err := bad.Encrypt([]byte("data"), []byte("pw"))
		assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	})

	t.Run("nil container", func(t *testing.T) {
		_, err := c.Decrypt(nil, []byte("pw"))
		assert.ErrorIs(t, err, crypto.ErrMalformedContainer)
	})
}

func TestPasswordCipher_RandomFailure(t *testing.T) {
	c := crypto.NewCipher(crypto.WithRandom(failingReader{}))

	_, err := c.Encrypt([]byte("data"), []byte("pw"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate salt")
}

func TestPasswordCipher_ConcurrentUse(t *testing.T) {
	c := crypto.NewCipher(crypto.WithKDF(crypto.KDFPBKDF2))

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			plaintext := bytes.Repeat([]byte{byte(n)}, 1024+n)
			password := []byte{'p', 'w', byte('0' + n)}

			sealed, err := c.Seal(plaintext, password)
			if err != nil {
				errs <- err
				return
			}
			opened, err := c.Open(sealed, password)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(plaintext, opened) {
				errs <- errors.New("round trip mismatch")
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent round trip: %v", err)
	}
}

func TestNewCipherFromNames(t *testing.T) {
	c, err := crypto.NewCipherFromNames("chacha20-poly1305", "scrypt")
	require.NoError(t, err)
	assert.Equal(t, crypto.SuiteChaCha20Poly1305, c.Suite())
	assert.Equal(t, crypto.KDFScrypt, c.KDF())

	_, err = crypto.NewCipherFromNames("des", "scrypt")
	assert.ErrorIs(t, err, crypto.ErrInvalidInput)

	_, err = crypto.NewCipherFromNames("aes-256-gcm", "md5")
	assert.ErrorIs(t, err, crypto.ErrInvalidInput)
}

func TestAlgorithmNames(t *testing.T) {
	assert.Equal(t, "aes-256-gcm", crypto.SuiteAES256GCM.String())
	assert.Equal(t, "chacha20-poly1305", crypto.SuiteChaCha20Poly1305.String())
	assert.Equal(t, "cipher(0x09)", crypto.CipherSuite(9).String())

	assert.Equal(t, "argon2id", crypto.KDFArgon2id.String())
	assert.Equal(t, "scrypt", crypto.KDFScrypt.String())
	assert.Equal(t, "pbkdf2-sha256", crypto.KDFPBKDF2.String())
	assert.Equal(t, "kdf(0x00)", crypto.KDF(0).String())
}

func TestKDF_DeriveKey(t *testing.T) {
	salt := bytes.Repeat([]byte{0x42}, crypto.SaltSize)

	for _, kdf := range []crypto.KDF{crypto.KDFArgon2id, crypto.KDFScrypt, crypto.KDFPBKDF2} {
		t.Run(kdf.String(), func(t *testing.T) {
			key1, err := kdf.DeriveKey([]byte("password"), salt)
			require.NoError(t, err)
			assert.Len(t, key1, crypto.KeySize)

			key2, err := kdf.DeriveKey([]byte("password"), salt)
			require.NoError(t, err)
			assert.Equal(t, key1, key2, "derivation is deterministic")

			otherSalt := bytes.Repeat([]byte{0x43}, crypto.SaltSize)
			key3, err := kdf.DeriveKey([]byte("password"), otherSalt)
			require.NoError(t, err)
			assert.NotEqual(t, key1, key3, "salt changes the key")
		})
	}

	t.Run("short salt", func(t *testing.T) {
		_, err := crypto.KDFArgon2id.DeriveKey([]byte("password"), []byte("short"))
		assert.ErrorIs(t, err, crypto.ErrInvalidInput)
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := crypto.KDF(0x10).DeriveKey([]byte("password"), salt)
		assert.ErrorIs(t, err, crypto.ErrMalformedContainer)
	})
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}
