package crypto

import (
	"bytes"
	"fmt"

	"github.com/TheMichaelB/safe/internal/models"
)

// Container format, version 1:
//
//	offset  size    field
//	0       1       format version (0x01)
//	1       1       cipher suite
//	2       1       kdf profile
//	3       32      salt
//	35      12      nonce
//	47      n+16    ciphertext || tag
//
// The first HeaderSize bytes are passed to the AEAD as additional data, so
// the whole header is authenticated along with the ciphertext.
const (
	FormatVersion uint8 = 0x01

	KeySize     = 32
	SaltSize    = 32
	MinSaltSize = 16
	NonceSize   = 12
	TagSize     = 16

	HeaderSize       = 3 + SaltSize + NonceSize
	MinContainerSize = HeaderSize + TagSize
)

// Container is an encrypted artifact. It is treated as immutable once
// created: re-encryption produces a new Container.
type Container struct {
	Version    uint8
	Suite      CipherSuite
	KDF        KDF
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte // ciphertext || tag
}

// Tag returns the authentication tag at the end of the ciphertext.
func (c *Container) Tag() []byte {
	if len(c.Ciphertext) < TagSize {
		return nil
	}
	return c.Ciphertext[len(c.Ciphertext)-TagSize:]
}

// Size returns the serialized length of the container.
func (c *Container) Size() int {
	return HeaderSize + len(c.Ciphertext)
}

// PlaintextSize returns the length of the plaintext the container holds.
func (c *Container) PlaintextSize() int {
	n := len(c.Ciphertext) - TagSize
	if n < 0 {
		return 0
	}
	return n
}

// Validate checks the container structure. It does not touch the
// ciphertext.
func (c *Container) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil container", ErrMalformedContainer)
	}
	if c.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrMalformedContainer, c.Version)
	}
	if !c.Suite.Valid() {
		return fmt.Errorf("%w: unsupported cipher 0x%02x", ErrMalformedContainer, uint8(c.Suite))
	}
	if !c.KDF.Valid() {
		return fmt.Errorf("%w: unsupported kdf 0x%02x", ErrMalformedContainer, uint8(c.KDF))
	}
	if len(c.Salt) != SaltSize {
		return fmt.Errorf("%w: salt is %d bytes, want %d", ErrMalformedContainer, len(c.Salt), SaltSize)
	}
	if len(c.Nonce) != NonceSize {
		return fmt.Errorf("%w: nonce is %d bytes, want %d", ErrMalformedContainer, len(c.Nonce), NonceSize)
	}
	if len(c.Ciphertext) < TagSize {
		return fmt.Errorf("%w: ciphertext shorter than tag", ErrMalformedContainer)
	}
	return nil
}

// header returns the serialized header, which doubles as AEAD additional
// data.
func (c *Container) header() []byte {
	h := make([]byte, 0, HeaderSize)
	h = append(h, c.Version, byte(c.Suite), byte(c.KDF))
	h = append(h, c.Salt...)
	h = append(h, c.Nonce...)
	return h
}

// MarshalBinary serializes the container.
func (c *Container) MarshalBinary() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, c.Size()))
	buf.Write(c.header())
	buf.Write(c.Ciphertext)

	return buf.Bytes(), nil
}

// UnmarshalBinary parses a serialized container. The container keeps its
// own copy of the data.
func (c *Container) UnmarshalBinary(data []byte) error {
	if len(data) < MinContainerSize {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedContainer, len(data), MinContainerSize)
	}

	raw := make([]byte, len(data))
	copy(raw, data)

	parsed := Container{
		Version:    raw[0],
		Suite:      CipherSuite(raw[1]),
		KDF:        KDF(raw[2]),
		Salt:       raw[3 : 3+SaltSize],
		Nonce:      raw[3+SaltSize : HeaderSize],
		Ciphertext: raw[HeaderSize:],
	}

	if err := parsed.Validate(); err != nil {
		return err
	}

	*c = parsed
	return nil
}

// ParseContainer parses a serialized container.
func ParseContainer(data []byte) (*Container, error) {
	c := &Container{}
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return c, nil
}

// Info describes the container without decrypting it.
func (c *Container) Info() models.ContainerInfo {
	return models.ContainerInfo{
		Version:       c.Version,
		Cipher:        c.Suite.String(),
		KDF:           c.KDF.String(),
		SaltSize:      len(c.Salt),
		NonceSize:     len(c.Nonce),
		TagSize:       TagSize,
		ContainerSize: int64(c.Size()),
		PlaintextSize: int64(c.PlaintextSize()),
	}
}

// Inspect parses data and describes the container. No password is needed.
func Inspect(data []byte) (models.ContainerInfo, error) {
	c, err := ParseContainer(data)
	if err != nil {
		return models.ContainerInfo{}, err
	}
	return c.Info(), nil
}
