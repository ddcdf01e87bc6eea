package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	// Cipher and key derivation defaults for new containers
	Crypto CryptoConfig `mapstructure:"crypto" json:"crypto"`

	// Where plaintext and containers are read and written
	Storage StorageConfig `mapstructure:"storage" json:"storage"`

	// Artifact journal
	Journal JournalConfig `mapstructure:"journal" json:"journal"`

	// Worker pool for batch operations
	Workers WorkerConfig `mapstructure:"workers" json:"workers"`

	// Password sources
	Auth AuthConfig `mapstructure:"auth" json:"auth"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`
}

// CryptoConfig selects the algorithms used when sealing new containers.
// Decryption always follows the identifiers stored in the container.
type CryptoConfig struct {
	Cipher string `mapstructure:"cipher" json:"cipher"` // aes-256-gcm, chacha20-poly1305
	KDF    string `mapstructure:"kdf" json:"kdf"`       // argon2id, scrypt, pbkdf2-sha256
}

// StorageConfig for the storage collaborator.
type StorageConfig struct {
	Backend     string   `mapstructure:"backend" json:"backend"`             // local, s3
	DataDir     string   `mapstructure:"data_dir" json:"data_dir"`           // Base directory for app data
	MaxFileSize int64    `mapstructure:"max_file_size" json:"max_file_size"` // Max file size in bytes
	Conflict    string   `mapstructure:"conflict" json:"conflict"`           // overwrite, rename, error, skip
	S3          S3Config `mapstructure:"s3" json:"s3"`
}

// S3Config for the S3 storage backend.
type S3Config struct {
	Bucket string `mapstructure:"bucket" json:"bucket"`
	Prefix string `mapstructure:"prefix" json:"prefix"`
	Region string `mapstructure:"region" json:"region"`
}

// JournalConfig for the artifact journal.
type JournalConfig struct {
	Backend string `mapstructure:"backend" json:"backend"` // json, sqlite, bolt, none
	Path    string `mapstructure:"path" json:"path"`
}

// WorkerConfig for concurrent batch processing.
type WorkerConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent" json:"max_concurrent"`
}

// AuthConfig for password resolution.
type AuthConfig struct {
	// JSON file mapping file names to passwords
	CredentialsFile string `mapstructure:"credentials_file" json:"credentials_file"`

	// Look up passwords in the OS keyring
	UseKeyring bool `mapstructure:"use_keyring" json:"use_keyring"`

	// Allow interactive prompts
	Prompt bool `mapstructure:"prompt" json:"prompt"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
	File   string `mapstructure:"file" json:"file"`     // Log file path (empty = stderr)
	Color  bool   `mapstructure:"color" json:"color"`   // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".safe"

	return &Config{
		Crypto: CryptoConfig{
			Cipher: "aes-256-gcm",
			KDF:    "argon2id",
		},
		Storage: StorageConfig{
			Backend:     "local",
			DataDir:     dataDir,
			MaxFileSize: 512 * 1024 * 1024, // 512MB
			Conflict:    "overwrite",
		},
		Journal: JournalConfig{
			Backend: "json",
			Path:    filepath.Join(dataDir, "journal.json"),
		},
		Workers: WorkerConfig{
			MaxConcurrent: 2,
		},
		Auth: AuthConfig{
			UseKeyring: false,
			Prompt:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	validCiphers := map[string]bool{"aes-256-gcm": true, "chacha20-poly1305": true}
	if !validCiphers[c.Crypto.Cipher] {
		return fmt.Errorf("invalid crypto.cipher: %s", c.Crypto.Cipher)
	}

	validKDFs := map[string]bool{"argon2id": true, "scrypt": true, "pbkdf2-sha256": true}
	if !validKDFs[c.Crypto.KDF] {
		return fmt.Errorf("invalid crypto.kdf: %s", c.Crypto.KDF)
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend)
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	validConflicts := map[string]bool{"overwrite": true, "rename": true, "error": true, "skip": true}
	if !validConflicts[c.Storage.Conflict] {
		return fmt.Errorf("invalid storage.conflict: %s", c.Storage.Conflict)
	}

	switch c.Journal.Backend {
	case "none":
	case "json", "sqlite", "bolt":
		if c.Journal.Path == "" {
			return errors.New("journal.path is required")
		}
	default:
		return fmt.Errorf("invalid journal.backend: %s", c.Journal.Backend)
	}

	if c.Workers.MaxConcurrent <= 0 {
		return errors.New("workers.max_concurrent must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDir}

	if c.Journal.Backend != "none" && c.Journal.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// IsRemote reports whether a location refers to the S3 backend.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "s3://")
}
