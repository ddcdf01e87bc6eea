package crypto_test

import (
	"errors"
	"fmt"

	"github.com/TheMichaelB/safe/internal/crypto"
)

func ExamplePasswordCipher_Seal() {
	c := crypto.NewCipher()

	sealed, err := c.Seal([]byte("Hello, World!"), []byte("correct-horse"))
	if err != nil {
		fmt.Printf("Encryption failed: %v\n", err)
		return
	}

	plaintext, err := c.Open(sealed, []byte("correct-horse"))
	if err != nil {
		fmt.Printf("Decryption failed: %v\n", err)
		return
	}

	fmt.Printf("Container: %d bytes\n", len(sealed))
	fmt.Printf("Decrypted: %s\n", plaintext)
	// Output:
	// Container: 76 bytes
	// Decrypted: Hello, World!
}

func ExamplePasswordCipher_Open_wrongPassword() {
	sealed, err := crypto.Seal([]byte("top secret"), []byte("battery-staple"))
	if err != nil {
		panic(err)
	}

	_, err = crypto.Open(sealed, []byte("wrong"))
	fmt.Println(errors.Is(err, crypto.ErrAuthentication))
	// Output: true
}

func ExampleInspect() {
	c := crypto.NewCipher(crypto.WithCipherSuite(crypto.SuiteChaCha20Poly1305), crypto.WithKDF(crypto.KDFScrypt))

	sealed, err := c.Seal([]byte("inspect me"), []byte("pw"))
	if err != nil {
		panic(err)
	}

	info, err := crypto.Inspect(sealed)
	if err != nil {
		panic(err)
	}

	fmt.Printf("v%d %s %s plaintext=%d\n", info.Version, info.Cipher, info.KDF, info.PlaintextSize)
	// Output: v1 chacha20-poly1305 scrypt plaintext=10
}
