package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/config"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Show container metadata without a password",
	Example: `  safe inspect ~/Vault/report.pdf
  safe inspect s3://backups/vault/report.pdf --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	c, err := newClient("", "")
	if err != nil {
		return err
	}

	var firstErr error
	for i, arg := range args {
		dir, name := splitLocation(arg)

		res, err := c.Safe.Inspect(cmd.Context(), dir, name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if !jsonOutput {
				printError("✗ %s: %v", arg, err)
			}
			continue
		}

		if jsonOutput {
			printJSON(res)
			continue
		}
		if i > 0 {
			printInfo("")
		}
		printInfoBlock(res)
	}

	return firstErr
}

// splitLocation splits a local path or s3:// URL into directory and name.
func splitLocation(location string) (string, string) {
	if config.IsRemote(location) {
		i := strings.LastIndex(location, "/")
		return location[:i], location[i+1:]
	}
	location = strings.TrimPrefix(location, "file://")
	return filepath.Dir(location), filepath.Base(location)
}
