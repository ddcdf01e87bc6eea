package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/client"
	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/creds"
	"github.com/TheMichaelB/safe/internal/crypto"
	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool
	logLevel   string

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "safe",
	Short: "Encrypt and decrypt files with a password",
	Long: `Safe seals files into authenticated containers derived from a password.

Each container records its cipher and key derivation function, so files
sealed with older settings always open with the current binary.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./safe.yaml or ~/.config/safe/safe.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return &models.VaultError{Code: models.ErrCodeConfig, Op: "config", Err: err}
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return &models.VaultError{Code: models.ErrCodeConfig, Op: "config", Err: err}
	}
	events.SetDefault(logger)

	logger.WithFields(map[string]interface{}{
		"command": cmd.Name(),
		"config":  cfgFile,
	}).Debug("Configuration loaded")

	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if apiClient != nil {
		err := apiClient.Close()
		apiClient = nil
		return err
	}
	return nil
}

// newClient builds the client once per run. Empty names keep the
// configured algorithms.
func newClient(cipherName, kdfName string) (*client.Client, error) {
	if apiClient != nil {
		return apiClient, nil
	}

	if cipherName != "" {
		cfg.Crypto.Cipher = cipherName
	}
	if kdfName != "" {
		cfg.Crypto.KDF = kdfName
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidInput) {
			return nil, &models.VaultError{Code: models.ErrCodeInvalidInput, Op: "config", Err: err}
		}
		return nil, &models.VaultError{Code: models.ErrCodeConfig, Op: "config", Err: err}
	}
	apiClient = c
	return apiClient, nil
}

func newResolver(c *client.Client) (*creds.Resolver, error) {
	r, err := c.Resolver()
	if err != nil {
		return nil, &models.VaultError{Code: models.ErrCodeConfig, Op: "credentials", Err: err}
	}
	return r, nil
}

// passwords resolves one password per name. A password typed at the
// prompt is reused for the remaining names instead of asking again.
func passwords(r *creds.Resolver, names []string, explicit string, confirm bool) ([][]byte, error) {
	var (
		out      = make([][]byte, len(names))
		prompted []byte
		prompt   = r.Prompt
	)

	for i, name := range names {
		if prompted != nil {
			r.Prompt = nil
		}

		pw, source, err := r.Resolve(name, []byte(explicit), confirm)
		r.Prompt = prompt

		if err != nil {
			if prompted == nil {
				return nil, &models.VaultError{Code: models.ErrCodeInvalidInput, Op: "credentials", Path: name, Err: err}
			}
			pw, source = prompted, creds.SourcePrompt
		}
		if source == creds.SourcePrompt && prompted == nil {
			prompted = pw
		}

		logger.WithFields(map[string]interface{}{
			"file":   name,
			"source": string(source),
		}).Debug("Password resolved")

		out[i] = pw
	}

	return out, nil
}

func wipe(pws [][]byte) {
	for _, pw := range pws {
		crypto.Zero(pw)
	}
}
