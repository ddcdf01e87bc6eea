package main

import (
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/models"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt [<name>...]",
	Short: "Decrypt containers from a source directory into a destination directory",
	Long: `Decrypt reads each named container from --src, opens it with the password
and writes the plaintext to --dest under the same name.

A wrong password or a damaged container leaves --dest untouched. With
--all every container directly inside --src is decrypted.`,
	Example: `  safe decrypt report.pdf --src ~/Vault --dest ~/Documents
  SAFE_PASSWORD=secret safe decrypt a.txt --src s3://backups/vault --dest .`,
	Args: cobra.ArbitraryArgs,
	RunE: runDecrypt,
}

var (
	decryptSrc      string
	decryptDest     string
	decryptPassword string
	decryptConflict string
	decryptAll      bool
	decryptRemove   bool
)

func init() {
	rootCmd.AddCommand(decryptCmd)

	decryptCmd.Flags().StringVarP(&decryptSrc, "src", "s", "",
		"Source directory (required)")
	decryptCmd.Flags().StringVarP(&decryptDest, "dest", "d", "",
		"Destination directory (required)")
	decryptCmd.Flags().StringVarP(&decryptPassword, "password", "p", "",
		"Password (resolved from env, credentials file, keyring or prompt if not provided)")
	decryptCmd.Flags().StringVar(&decryptConflict, "on-conflict", "",
		"When the destination exists: overwrite, rename, error or skip")

	decryptCmd.Flags().BoolVar(&decryptAll, "all", false,
		"Process every container in the source directory")
	decryptCmd.Flags().BoolVar(&decryptRemove, "remove-source", false,
		"Delete each container after its plaintext was written")

	_ = decryptCmd.MarkFlagRequired("src")
	_ = decryptCmd.MarkFlagRequired("dest")
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	return runTransform(cmd, transform{
		op:       models.OpDecrypt,
		names:    args,
		all:      decryptAll,
		remove:   decryptRemove,
		src:      decryptSrc,
		dest:     decryptDest,
		password: decryptPassword,
		conflict: decryptConflict,
	})
}
