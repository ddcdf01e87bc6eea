package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/TheMichaelB/safe/internal/crypto"
)

func BenchmarkKeyDerivation(b *testing.B) {
	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		b.Fatal(err)
	}

	for _, kdf := range []crypto.KDF{crypto.KDFArgon2id, crypto.KDFScrypt, crypto.KDFPBKDF2} {
		b.Run(kdf.String(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := kdf.DeriveKey([]byte("password123"), salt); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSeal(b *testing.B) {
	sizes := map[string]int{
		"1KB":  1024,
		"1MB":  1024 * 1024,
		"10MB": 10 * 1024 * 1024,
	}

	for _, suite := range []crypto.CipherSuite{crypto.SuiteAES256GCM, crypto.SuiteChaCha20Poly1305} {
		c := crypto.NewCipher(crypto.WithCipherSuite(suite), crypto.WithKDF(crypto.KDFScrypt))

		for name, size := range sizes {
			plaintext := make([]byte, size)
			if _, err := rand.Read(plaintext); err != nil {
				b.Fatal(err)
			}

			b.Run(suite.String()+"/"+name, func(b *testing.B) {
				b.SetBytes(int64(size))
				for i := 0; i < b.N; i++ {
					if _, err := c.Seal(plaintext, []byte("password123")); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkOpen(b *testing.B) {
	c := crypto.NewCipher(crypto.WithKDF(crypto.KDFScrypt))

	plaintext := make([]byte, 1024*1024)
	if _, err := rand.Read(plaintext); err != nil {
		b.Fatal(err)
	}

	sealed, err := c.Seal(plaintext, []byte("password123"))
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(plaintext)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.Open(sealed, []byte("password123")); err != nil {
			b.Fatal(err)
		}
	}
}
