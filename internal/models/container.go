package models

import "time"

// Operation names recorded in artifacts and logs.
const (
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
	OpRekey   = "rekey"
	OpInspect = "inspect"
	OpList    = "list"
)

// ContainerInfo describes an encrypted container without revealing its
// contents. It can be produced without the password.
type ContainerInfo struct {
	Version       uint8  `json:"version"`
	Cipher        string `json:"cipher"`
	KDF           string `json:"kdf"`
	SaltSize      int    `json:"salt_size"`
	NonceSize     int    `json:"nonce_size"`
	TagSize       int    `json:"tag_size"`
	ContainerSize int64  `json:"container_size"`
	PlaintextSize int64  `json:"plaintext_size"`
}

// Artifact is the journal record of a file written by the vault service.
// It never holds secret material.
type Artifact struct {
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	Operation string    `json:"operation"`
	Cipher    string    `json:"cipher,omitempty"`
	KDF       string    `json:"kdf,omitempty"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// IsEncrypted reports whether the artifact holds a container.
func (a *Artifact) IsEncrypted() bool {
	return a.Operation == OpEncrypt || a.Operation == OpRekey
}
