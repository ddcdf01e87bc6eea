package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/models"
	"github.com/TheMichaelB/safe/internal/state"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List files written by safe",
	Long: `History shows the journal of files safe has written: where each came
from, which algorithms sealed it and its SHA-256. No secrets are stored.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyForgetCmd = &cobra.Command{
	Use:   "forget <path>",
	Short: "Remove an entry from the journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryForget,
}

var historyMigrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Copy the journal into another backend",
	Example: `  safe history migrate --to sqlite --path ~/.safe/journal.db`,
	Args:    cobra.NoArgs,
	RunE:    runHistoryMigrate,
}

var (
	migrateTo   string
	migratePath string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyForgetCmd)
	historyCmd.AddCommand(historyMigrateCmd)

	historyMigrateCmd.Flags().StringVar(&migrateTo, "to", "sqlite",
		"Target backend (json, sqlite, bolt)")
	historyMigrateCmd.Flags().StringVar(&migratePath, "path", "",
		"Target journal path (default: next to the current journal)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient("", "")
	if err != nil {
		return err
	}
	store := c.Journal

	artifacts, err := store.List()
	if err != nil {
		return &models.VaultError{Code: models.ErrCodeIO, Op: "history", Err: err}
	}

	if jsonOutput {
		printJSON(artifacts)
		return nil
	}

	if len(artifacts) == 0 {
		printInfo("No files recorded")
		return nil
	}

	for _, a := range artifacts {
		algo := "-"
		if a.IsEncrypted() {
			algo = a.Cipher + "/" + a.KDF
		}
		fmt.Fprintf(stdout, "%s  %-7s  %-30s  %9s  %s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			a.Operation,
			algo,
			formatBytes(a.Size),
			a.Path,
		)
	}
	return nil
}

func runHistoryForget(cmd *cobra.Command, args []string) error {
	c, err := newClient("", "")
	if err != nil {
		return err
	}
	store := c.Journal

	if _, err := store.Get(args[0]); err != nil {
		printWarning("No journal entry for %s", args[0])
		return nil
	}

	if err := store.Forget(args[0]); err != nil {
		return &models.VaultError{Code: models.ErrCodeIO, Op: "history", Path: args[0], Err: err}
	}

	printSuccess("Forgot %s", args[0])
	return nil
}

func runHistoryMigrate(cmd *cobra.Command, args []string) error {
	c, err := newClient("", "")
	if err != nil {
		return err
	}
	source := c.Journal

	target := config.JournalConfig{Backend: migrateTo, Path: migratePath}
	if target.Path == "" {
		ext := map[string]string{"json": "journal.json", "sqlite": "journal.db", "bolt": "journal.bolt"}[migrateTo]
		target.Path = filepath.Join(filepath.Dir(cfg.Journal.Path), ext)
	}
	if target.Backend == cfg.Journal.Backend && target.Path == cfg.Journal.Path {
		return &models.VaultError{
			Code: models.ErrCodeInvalidInput,
			Op:   "history",
			Err:  fmt.Errorf("target is the current journal"),
		}
	}

	dest, err := state.Open(&target, logger)
	if err != nil {
		return &models.VaultError{Code: models.ErrCodeConfig, Op: "history", Path: target.Path, Err: err}
	}
	defer dest.Close()

	if err := source.Migrate(dest); err != nil {
		return &models.VaultError{Code: models.ErrCodeIO, Op: "history", Path: target.Path, Err: err}
	}

	printSuccess("Journal copied to %s (%s)", target.Path, target.Backend)
	printInfo("Set journal.backend=%s and journal.path=%s to use it", target.Backend, target.Path)
	return nil
}
