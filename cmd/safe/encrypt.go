package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/safe/internal/models"
	"github.com/TheMichaelB/safe/internal/services/safe"
	"github.com/TheMichaelB/safe/internal/storage"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [<name>...]",
	Short: "Encrypt files from a source directory into a destination directory",
	Long: `Encrypt reads each named file from --src, seals it with a password and
writes the container to --dest under the same name.

Names may be bare file names, paths or file:// URIs; only the base name
is used. Directories may be local paths or s3://bucket/prefix URLs.
With --all every file directly inside --src is encrypted.`,
	Example: `  safe encrypt report.pdf --src ~/Documents --dest ~/Vault
  safe encrypt a.txt b.txt --src . --dest s3://backups/vault --kdf scrypt
  safe encrypt --all --remove-source --src ./inbox --dest ~/Vault`,
	Args: cobra.ArbitraryArgs,
	RunE: runEncrypt,
}

var (
	encryptSrc      string
	encryptDest     string
	encryptPassword string
	encryptCipher   string
	encryptKDF      string
	encryptConflict string
	encryptAll      bool
	encryptRemove   bool
)

func init() {
	rootCmd.AddCommand(encryptCmd)

	encryptCmd.Flags().StringVarP(&encryptSrc, "src", "s", "",
		"Source directory (required)")
	encryptCmd.Flags().StringVarP(&encryptDest, "dest", "d", "",
		"Destination directory (required)")
	encryptCmd.Flags().StringVarP(&encryptPassword, "password", "p", "",
		"Password (resolved from env, credentials file, keyring or prompt if not provided)")
	encryptCmd.Flags().StringVar(&encryptCipher, "cipher", "",
		"Cipher: aes-256-gcm or chacha20-poly1305 (default from config)")
	encryptCmd.Flags().StringVar(&encryptKDF, "kdf", "",
		"Key derivation: argon2id, scrypt or pbkdf2-sha256 (default from config)")
	encryptCmd.Flags().StringVar(&encryptConflict, "on-conflict", "",
		"When the destination exists: overwrite, rename, error or skip")

	encryptCmd.Flags().BoolVar(&encryptAll, "all", false,
		"Process every file in the source directory")
	encryptCmd.Flags().BoolVar(&encryptRemove, "remove-source", false,
		"Delete each source file after it was written to the destination")

	_ = encryptCmd.MarkFlagRequired("src")
	_ = encryptCmd.MarkFlagRequired("dest")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	return runTransform(cmd, transform{
		op:       models.OpEncrypt,
		names:    args,
		all:      encryptAll,
		remove:   encryptRemove,
		src:      encryptSrc,
		dest:     encryptDest,
		password: encryptPassword,
		conflict: encryptConflict,
		cipher:   encryptCipher,
		kdf:      encryptKDF,
		confirm:  true,
	})
}

type transform struct {
	op       string
	names    []string
	all      bool
	remove   bool
	src      string
	dest     string
	password string
	conflict string
	cipher   string
	kdf      string
	confirm  bool
}

func runTransform(cmd *cobra.Command, t transform) error {
	ctx := cmd.Context()

	// An empty strategy keeps the configured one
	conflict := storage.ConflictStrategy(t.conflict)
	if conflict != "" {
		if _, err := storage.ParseConflictStrategy(t.conflict); err != nil {
			return &models.VaultError{Code: models.ErrCodeInvalidInput, Op: t.op, Err: err}
		}
	}

	if t.all == (len(t.names) > 0) {
		return &models.VaultError{
			Code: models.ErrCodeInvalidInput,
			Op:   t.op,
			Err:  fmt.Errorf("name files or pass --all, not both"),
		}
	}

	c, err := newClient(t.cipher, t.kdf)
	if err != nil {
		return err
	}

	if t.all {
		if t.names, err = c.Safe.List(ctx, t.src); err != nil {
			return err
		}
		if len(t.names) == 0 {
			printInfo("No files in %s", t.src)
			return nil
		}
	}

	resolver, err := newResolver(c)
	if err != nil {
		return err
	}

	names := make([]string, len(t.names))
	for i, n := range t.names {
		if names[i], err = safe.FileName(n); err != nil {
			return &models.VaultError{Code: models.ErrCodeInvalidInput, Op: t.op, Path: n, Err: err}
		}
	}

	pws, err := passwords(resolver, names, t.password, t.confirm)
	if err != nil {
		return err
	}
	defer wipe(pws)

	reqs := make([]safe.Request, len(names))
	for i, name := range names {
		reqs[i] = safe.Request{
			SourceDir:    t.src,
			DestDir:      t.dest,
			Name:         name,
			Password:     pws[i],
			Conflict:     conflict,
			RemoveSource: t.remove,
		}
	}

	outcomes := c.Safe.Batch(ctx, t.op, reqs)
	return reportOutcomes(t.op, outcomes)
}
