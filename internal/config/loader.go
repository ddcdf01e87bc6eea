package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SAFE_LOG_LEVEL.
const EnvPrefix = "SAFE"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Load reads configuration from defaults, file and environment, in that
// order of precedence (lowest first).
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v, DefaultConfig())

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("safe")
		for _, dir := range l.defaultPaths() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", l.v.ConfigFileUsed(), err)
			}
		}
	}

	// Override with environment variables
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed returns the file the last Load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "safe"),
			filepath.Join(homeDir, ".safe"),
		)
	}

	return paths
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crypto.cipher", cfg.Crypto.Cipher)
	v.SetDefault("crypto.kdf", cfg.Crypto.KDF)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.max_file_size", cfg.Storage.MaxFileSize)
	v.SetDefault("storage.conflict", cfg.Storage.Conflict)
	v.SetDefault("storage.s3.bucket", cfg.Storage.S3.Bucket)
	v.SetDefault("storage.s3.prefix", cfg.Storage.S3.Prefix)
	v.SetDefault("storage.s3.region", cfg.Storage.S3.Region)

	v.SetDefault("journal.backend", cfg.Journal.Backend)
	v.SetDefault("journal.path", cfg.Journal.Path)

	v.SetDefault("workers.max_concurrent", cfg.Workers.MaxConcurrent)

	v.SetDefault("auth.credentials_file", cfg.Auth.CredentialsFile)
	v.SetDefault("auth.use_keyring", cfg.Auth.UseKeyring)
	v.SetDefault("auth.prompt", cfg.Auth.Prompt)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)
}

// SaveExample writes an example config file. The format follows the file
// extension (yaml, json or toml).
func SaveExample(path string) error {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}

	return nil
}
