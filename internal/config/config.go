// Package config loads mediadupes settings from defaults, an optional YAML
// file and MEDIADUPES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Backend names accepted by scan.backend.
const (
	BackendNative  = "native"
	BackendFclones = "fclones"
)

// Config holds all application configuration
type Config struct {
	Scan          ScanConfig     `mapstructure:"scan"`
	Fclones       FclonesConfig  `mapstructure:"fclones"`
	Delete        DeleteConfig   `mapstructure:"delete"`
	DB            DBConfig       `mapstructure:"db"`
	RetentionDays int            `mapstructure:"retention_days"`
	Server        ServerConfig   `mapstructure:"server"`
	Schedule      ScheduleConfig `mapstructure:"schedule"`
	Log           LogConfig      `mapstructure:"log"`
}

// ScanConfig selects what gets scanned and how.
type ScanConfig struct {
	Paths      []string      `mapstructure:"paths"`
	MinSize    string        `mapstructure:"min_size"`
	MaxSize    string        `mapstructure:"max_size"`
	Include    []string      `mapstructure:"include"`
	Exclude    []string      `mapstructure:"exclude"`
	Extensions []string      `mapstructure:"extensions"`
	Workers    int           `mapstructure:"workers"`
	Backend    string        `mapstructure:"backend"`
	PrefixSize string        `mapstructure:"prefix_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// FclonesConfig configures the external fclones backend.
type FclonesConfig struct {
	Binary       string `mapstructure:"binary"`
	HashFunction string `mapstructure:"hash_fn"`
}

// DeleteConfig configures deletion.
type DeleteConfig struct {
	TrashDir string `mapstructure:"trash_dir"`
	Workers  int    `mapstructure:"workers"`
}

// DBConfig locates the history database.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ScheduleConfig configures periodic rescans. An empty cron disables them.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Sentinel errors for configuration validation.
var (
	ErrNoScanPaths     = errors.New("scan.paths must list at least one directory")
	ErrInvalidBackend  = errors.New("scan.backend must be native or fclones")
	ErrInvalidWorkers  = errors.New("scan.workers must be non-negative")
	ErrInvalidSize     = errors.New("invalid size")
	ErrInvalidSizes    = errors.New("scan.max_size must not be below scan.min_size")
	ErrInvalidPort     = errors.New("server.port must be between 1 and 65535")
	ErrInvalidCron     = errors.New("schedule.cron is not a valid cron expression")
	ErrInvalidLogLevel = errors.New("log.level is not a valid level")
	ErrInvalidRetain   = errors.New("retention_days must be non-negative")
	ErrTrashInScanPath = errors.New("delete.trash_dir must not be inside a scan path")
)

// Validate checks Config invariants and returns the first error found.
// Scan paths are not required here; commands that scan check them.
func (c *Config) Validate() error {
	switch c.Scan.Backend {
	case BackendNative, BackendFclones:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Scan.Backend)
	}

	if c.Scan.Workers < 0 || c.Delete.Workers < 0 {
		return ErrInvalidWorkers
	}

	minSize, err := c.MinSizeBytes()
	if err != nil {
		return err
	}
	maxSize, err := c.MaxSizeBytes()
	if err != nil {
		return err
	}
	if maxSize > 0 && maxSize < minSize {
		return ErrInvalidSizes
	}
	if _, err := c.PrefixSizeBytes(); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCron, err)
		}
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	if c.RetentionDays < 0 {
		return ErrInvalidRetain
	}

	if c.Delete.TrashDir != "" && len(c.Scan.Paths) > 0 && c.IsPathAllowed(c.Delete.TrashDir) {
		return ErrTrashInScanPath
	}

	return nil
}

// RequireScanPaths reports an error when no scan path is configured.
func (c *Config) RequireScanPaths() error {
	if len(c.Scan.Paths) == 0 {
		return ErrNoScanPaths
	}
	return nil
}

// MinSizeBytes parses scan.min_size.
func (c *Config) MinSizeBytes() (int64, error) {
	return parseSize("scan.min_size", c.Scan.MinSize)
}

// MaxSizeBytes parses scan.max_size; 0 means unlimited.
func (c *Config) MaxSizeBytes() (int64, error) {
	return parseSize("scan.max_size", c.Scan.MaxSize)
}

// PrefixSizeBytes parses scan.prefix_size.
func (c *Config) PrefixSizeBytes() (int64, error) {
	return parseSize("scan.prefix_size", c.Scan.PrefixSize)
}

func parseSize(key, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %q", ErrInvalidSize, key, value)
	}
	return int64(n), nil
}

// IsPathAllowed reports whether path is one of the scan paths or inside one.
// No configured scan paths means every path is allowed.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.Scan.Paths) == 0 {
		return true
	}
	clean := filepath.Clean(path)
	for _, allowed := range c.Scan.Paths {
		allowed = filepath.Clean(allowed)
		if clean == allowed {
			return true
		}
		prefix := allowed
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// ExpandPath expands a leading ~ to the home directory and cleans the path.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

// NormalizePaths expands, absolutizes and de-duplicates paths, dropping blanks.
func NormalizePaths(paths []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = ExpandPath(p)
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
