package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/creds"
	"github.com/TheMichaelB/safe/internal/crypto"
	"github.com/TheMichaelB/safe/internal/models"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage passwords in the OS keyring",
	Long: `Passwords stored in the keyring are used for the matching file name when
auth.use_keyring is enabled.`,
}

var keyringSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Store the password for a file name",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyringSave,
}

var keyringDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove the password for a file name",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyringDelete,
}

var keyringStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Check whether a password is stored for a file name",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeyringStatus,
}

var keyringPassword string

func init() {
	rootCmd.AddCommand(keyringCmd)
	keyringCmd.AddCommand(keyringSaveCmd, keyringDeleteCmd, keyringStatusCmd)

	keyringSaveCmd.Flags().StringVarP(&keyringPassword, "password", "p", "",
		"Password (will prompt if not provided)")
}

func runKeyringSave(cmd *cobra.Command, args []string) error {
	name := args[0]

	pw := []byte(keyringPassword)
	if len(pw) == 0 {
		prompt := creds.NewTerminalPrompt()
		if prompt == nil {
			return &models.VaultError{Code: models.ErrCodeInvalidInput, Op: "keyring", Path: name, Err: models.ErrNoPassword}
		}
		var err error
		if pw, err = prompt.ReadPasswordConfirm(name); err != nil {
			return &models.VaultError{Code: models.ErrCodeInvalidInput, Op: "keyring", Path: name, Err: err}
		}
	}
	defer crypto.Zero(pw)

	if err := creds.NewKeyring(creds.DefaultService).Save(name, pw); err != nil {
		return &models.VaultError{Code: models.ErrCodeIO, Op: "keyring", Path: name, Err: err}
	}

	printSuccess("Password for %s saved to keyring", name)
	if !cfg.Auth.UseKeyring {
		printWarning("auth.use_keyring is disabled; enable it to use stored passwords")
	}
	return nil
}

func runKeyringDelete(cmd *cobra.Command, args []string) error {
	err := creds.NewKeyring(creds.DefaultService).Delete(args[0])
	if errors.Is(err, creds.ErrNotInKeyring) {
		printInfo("No password stored for %s", args[0])
		return nil
	}
	if err != nil {
		return &models.VaultError{Code: models.ErrCodeIO, Op: "keyring", Path: args[0], Err: err}
	}

	printSuccess("Password for %s removed from keyring", args[0])
	return nil
}

func runKeyringStatus(cmd *cobra.Command, args []string) error {
	stored := creds.NewKeyring(creds.DefaultService).Has(args[0])

	if jsonOutput {
		printJSON(map[string]interface{}{"name": args[0], "stored": stored})
		return nil
	}
	if stored {
		printSuccess("Password for %s is stored in keyring", args[0])
	} else {
		printInfo("No password stored for %s", args[0])
	}
	return nil
}
