// Package config loads and validates the pipeline's run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theoremus-urban-solutions/xsd-pipeline/xerrors"
)

// Config is the top-level configuration consumed by the orchestrator.
type Config struct {
	RootPath                 string        `yaml:"rootPath"`
	Extensions               []string      `yaml:"extensions"`
	IncludeGlobs             []string      `yaml:"includeGlobs"`
	ExcludeGlobs             []string      `yaml:"excludeGlobs"`
	MaxDepth                 *int          `yaml:"maxDepth,omitempty"`
	FollowSymlinks           bool          `yaml:"followSymlinks"`
	MaxConcurrentValidations int           `yaml:"maxConcurrentValidations"`
	PerFileTimeout           time.Duration `yaml:"perFileTimeout"`
	FailFast                 bool          `yaml:"failFast"`
	CollectMetrics           bool          `yaml:"collectMetrics"`
	Cache                    CacheConfig   `yaml:"cache"`
	Network                  NetworkConfig `yaml:"network"`
}

// CacheConfig configures the disk and memory cache tiers.
type CacheConfig struct {
	Directory        string        `yaml:"directory"`
	EntryTTL         time.Duration `yaml:"entryTTL"`
	MaxDiskSizeMB    int64         `yaml:"maxDiskSizeMB"`
	MaxMemoryEntries int           `yaml:"maxMemoryEntries"`
	MemoryTTL        time.Duration `yaml:"memoryTTL"`
}

// NetworkConfig configures the HTTP fetcher.
type NetworkConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay  time.Duration `yaml:"retryMaxDelay"`
	UserAgent      string        `yaml:"userAgent"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Extensions:               []string{"xml"},
		MaxConcurrentValidations: 4,
		PerFileTimeout:           30 * time.Second,
		FailFast:                 false,
		CollectMetrics:           true,
		Cache: CacheConfig{
			Directory:        ".xsd-pipeline-cache",
			EntryTTL:         24 * time.Hour,
			MaxDiskSizeMB:    512,
			MaxMemoryEntries: 256,
			MemoryTTL:        30 * time.Minute,
		},
		Network: NetworkConfig{
			RequestTimeout: 30 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: time.Second,
			RetryMaxDelay:  30 * time.Second,
			UserAgent:      "xsd-pipeline/1.0",
		},
	}
}

// Load loads configuration from a YAML file, falling back to Default() when
// path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}
	if !filepath.IsAbs(path) && strings.Contains(path, "..") {
		return nil, fmt.Errorf("invalid config file path: %s", path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Extensions) == 0 {
		return &xerrors.Config{Details: "extensions must be non-empty"}
	}
	if c.MaxConcurrentValidations < 1 {
		return &xerrors.Config{Details: "maxConcurrentValidations must be >= 1"}
	}
	if c.PerFileTimeout <= 0 {
		return &xerrors.Config{Details: "perFileTimeout must be positive"}
	}
	if c.Cache.MaxMemoryEntries < 0 {
		return &xerrors.Config{Details: "cache.maxMemoryEntries cannot be negative"}
	}
	if c.Network.RetryAttempts < 0 {
		return &xerrors.Config{Details: "network.retryAttempts cannot be negative"}
	}
	return nil
}
