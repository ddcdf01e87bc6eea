package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/creds"
	"github.com/TheMichaelB/safe/internal/crypto"
	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/services/safe"
	"github.com/TheMichaelB/safe/internal/state"
)

// Client provides the high-level API for safe operations.
type Client struct {
	Safe    *safe.Service
	Journal state.Store

	config   *config.Config
	logger   *events.Logger
	resolver *creds.Resolver
}

// New creates a client from configuration. New containers use the
// algorithms named in cfg.Crypto.
func New(cfg *config.Config, logger *events.Logger, opts ...safe.Option) (*Client, error) {
	cfg.Journal.Path = expandHome(cfg.Journal.Path)
	cfg.Auth.CredentialsFile = expandHome(cfg.Auth.CredentialsFile)

	cipher, err := crypto.NewCipherFromNames(cfg.Crypto.Cipher, cfg.Crypto.KDF)
	if err != nil {
		return nil, err
	}

	journal, err := state.Open(&cfg.Journal, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	opts = append([]safe.Option{safe.WithWorkers(cfg.Workers.MaxConcurrent)}, opts...)

	return &Client{
		Safe:    safe.NewService(cfg, cipher, journal, logger, opts...),
		Journal: journal,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Resolver returns the password resolver, loading the credentials file on
// first use.
func (c *Client) Resolver() (*creds.Resolver, error) {
	if c.resolver != nil {
		return c.resolver, nil
	}

	r, err := creds.NewResolver(&c.config.Auth, c.logger)
	if err != nil {
		return nil, err
	}
	c.resolver = r
	return r, nil
}

// Close releases the journal.
func (c *Client) Close() error {
	return c.Journal.Close()
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}
