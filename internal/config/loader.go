package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lyallcooper/mediadupes/internal/hasher"
)

// configName is the config file name without extension.
const configName = "mediadupes"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for mediadupes settings.
const envPrefix = "MEDIADUPES"

// Defaults.
const (
	DefaultPort          = 8080
	DefaultDBPath        = "./data/mediadupes.db"
	DefaultRetentionDays = 30
	DefaultMinSize       = "1 B"
	DefaultPrefixSize    = "64 KiB"
	DefaultScanTimeout   = 6 * time.Hour
	DefaultLogLevel      = "info"
	DefaultLogMaxSize    = 50
	DefaultLogMaxBackups = 3
)

// Load reads configuration from file, env vars and defaults.
// If configPath is non-empty it is used as the explicit config file path;
// otherwise mediadupes.yaml is searched in CWD and $HOME/.config/mediadupes.
// A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mediadupes"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Scan.Paths = NormalizePaths(cfg.Scan.Paths)
	cfg.Scan.Backend = strings.ToLower(strings.TrimSpace(cfg.Scan.Backend))
	cfg.DB.Path = ExpandPath(cfg.DB.Path)
	cfg.Log.Path = ExpandPath(cfg.Log.Path)
	if cfg.Delete.TrashDir != "" {
		cfg.Delete.TrashDir = NormalizePaths([]string{cfg.Delete.TrashDir})[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("scan.paths", []string{})
	v.SetDefault("scan.min_size", DefaultMinSize)
	v.SetDefault("scan.max_size", "")
	v.SetDefault("scan.include", []string{})
	v.SetDefault("scan.exclude", []string{})
	v.SetDefault("scan.extensions", hasher.DefaultMediaExtensions)
	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.backend", BackendNative)
	v.SetDefault("scan.prefix_size", DefaultPrefixSize)
	v.SetDefault("scan.timeout", DefaultScanTimeout)

	v.SetDefault("fclones.binary", "fclones")
	v.SetDefault("fclones.hash_fn", "")

	v.SetDefault("delete.trash_dir", "")
	v.SetDefault("delete.workers", 0)

	v.SetDefault("db.path", DefaultDBPath)
	v.SetDefault("retention_days", DefaultRetentionDays)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultPort)

	v.SetDefault("schedule.cron", "")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.path", "")
	v.SetDefault("log.max_size", DefaultLogMaxSize)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
}
