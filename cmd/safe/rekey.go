package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/crypto"
	"github.com/TheMichaelB/safe/internal/models"
)

var rekeyCmd = &cobra.Command{
	Use:   "rekey <name>",
	Short: "Change the password of a container",
	Long: `Rekey opens a container with its current password and replaces it with a
new container under a new password. The new container uses fresh random
values and the configured (or given) algorithms. The file is replaced
atomically.`,
	Example: `  safe rekey report.pdf --dir ~/Vault
  safe rekey report.pdf --dir ~/Vault --kdf argon2id`,
	Args: cobra.ExactArgs(1),
	RunE: runRekey,
}

var (
	rekeyDir         string
	rekeyOldPassword string
	rekeyNewPassword string
	rekeyCipher      string
	rekeyKDF         string
)

func init() {
	rootCmd.AddCommand(rekeyCmd)

	rekeyCmd.Flags().StringVar(&rekeyDir, "dir", "",
		"Directory holding the container (required)")
	rekeyCmd.Flags().StringVar(&rekeyOldPassword, "old-password", "",
		"Current password (resolved like decrypt if not provided)")
	rekeyCmd.Flags().StringVar(&rekeyNewPassword, "new-password", "",
		"New password (will prompt if not provided)")
	rekeyCmd.Flags().StringVar(&rekeyCipher, "cipher", "",
		"Cipher for the new container (default from config)")
	rekeyCmd.Flags().StringVar(&rekeyKDF, "kdf", "",
		"Key derivation for the new container (default from config)")

	_ = rekeyCmd.MarkFlagRequired("dir")
}

func runRekey(cmd *cobra.Command, args []string) error {
	c, err := newClient(rekeyCipher, rekeyKDF)
	if err != nil {
		return err
	}

	resolver, err := newResolver(c)
	if err != nil {
		return err
	}

	oldPW, err := passwords(resolver, args, rekeyOldPassword, false)
	if err != nil {
		return err
	}
	defer wipe(oldPW)

	newPW := []byte(rekeyNewPassword)
	if len(newPW) == 0 {
		if resolver.Prompt == nil {
			return &models.VaultError{Code: models.ErrCodeInvalidInput, Op: models.OpRekey, Path: args[0], Err: models.ErrNoPassword}
		}
		printInfo("Choose a new password")
		if newPW, err = resolver.Prompt.ReadPasswordConfirm(args[0]); err != nil {
			return &models.VaultError{Code: models.ErrCodeInvalidInput, Op: models.OpRekey, Path: args[0], Err: err}
		}
	}
	defer crypto.Zero(newPW)

	res, err := c.Safe.Rekey(cmd.Context(), rekeyDir, args[0], oldPW[0], newPW)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "result": res})
		return nil
	}

	printSuccess("✓ %s rekeyed (%s, %s)", res.Name, res.Info.Cipher, res.Info.KDF)
	return nil
}
