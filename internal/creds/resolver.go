package creds

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
)

// EnvPassword is the environment variable consulted for a password.
const EnvPassword = "SAFE_PASSWORD"

// Source names where a password came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceEnv     Source = "env"
	SourceFile    Source = "credentials_file"
	SourceKeyring Source = "keyring"
	SourcePrompt  Source = "prompt"
)

// Resolver finds the password for a file. Sources are tried in order:
// explicit value, SAFE_PASSWORD, credentials file, keyring, prompt.
type Resolver struct {
	File    *File
	Keyring *Keyring
	Prompt  *Prompt
	Getenv  func(string) string

	logger *events.Logger
}

// NewResolver builds a resolver from the auth configuration.
func NewResolver(cfg *config.AuthConfig, logger *events.Logger) (*Resolver, error) {
	r := &Resolver{
		Getenv: os.Getenv,
		logger: logger.WithField("component", "creds"),
	}

	if cfg.CredentialsFile != "" {
		f, err := LoadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("load credentials file: %w", err)
		}
		r.File = f
	}

	if cfg.UseKeyring {
		r.Keyring = NewKeyring(DefaultService)
	}

	if cfg.Prompt {
		r.Prompt = NewTerminalPrompt()
	}

	return r, nil
}

// Resolve returns the password for name. With confirm set, a prompted
// password must be typed twice. The caller owns the returned slice and
// should zero it.
func (r *Resolver) Resolve(name string, explicit []byte, confirm bool) ([]byte, Source, error) {
	if len(explicit) > 0 {
		return clone(explicit), SourceFlag, nil
	}

	if r.Getenv != nil {
		if pw := r.Getenv(EnvPassword); pw != "" {
			return []byte(pw), SourceEnv, nil
		}
	}

	if pw := r.File.Password(name); pw != "" {
		return []byte(pw), SourceFile, nil
	}

	if r.Keyring != nil {
		pw, err := r.Keyring.Get(name)
		switch {
		case err == nil:
			return pw, SourceKeyring, nil
		case !errors.Is(err, ErrNotInKeyring):
			r.log().WithError(err).Warn("Keyring lookup failed")
		}
	}

	if r.Prompt != nil {
		var (
			pw  []byte
			err error
		)
		if confirm {
			pw, err = r.Prompt.ReadPasswordConfirm(name)
		} else {
			pw, err = r.Prompt.ReadPassword(fmt.Sprintf("Password for %s: ", name))
		}
		if err != nil {
			return nil, "", err
		}
		if len(pw) > 0 {
			return pw, SourcePrompt, nil
		}
	}

	return nil, "", fmt.Errorf("%w for %s", models.ErrNoPassword, name)
}

func (r *Resolver) log() *events.Logger {
	if r.logger == nil {
		return events.FromContext(context.Background())
	}
	return r.logger
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
