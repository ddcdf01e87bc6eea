package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file",
	Example: `  safe config init
  safe config init ~/.config/safe/safe.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printJSON(cfg)
		return nil
	},
}

var configForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "safe.yaml"
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		printWarning("%s already exists (use --force to overwrite)", path)
		return nil
	}

	if err := config.SaveExample(path); err != nil {
		return &models.VaultError{Code: models.ErrCodeIO, Op: "config", Path: path, Err: err}
	}

	printSuccess("Wrote %s", path)
	return nil
}
