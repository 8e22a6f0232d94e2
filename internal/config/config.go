// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Index    IndexConfig    `mapstructure:"index" yaml:"index"`
	Chunking ChunkingConfig `mapstructure:"chunking" yaml:"chunking"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Plugins  []PluginConfig `mapstructure:"plugins" yaml:"plugins"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// IndexConfig contains repository scan configuration.
type IndexConfig struct {
	Include      []string `mapstructure:"include" yaml:"include"` // glob patterns to include
	Exclude      []string `mapstructure:"exclude" yaml:"exclude"` // glob patterns to exclude
	UseGitIgnore bool     `mapstructure:"use_gitignore" yaml:"use_gitignore"`
	MaxFileSize  string   `mapstructure:"max_file_size" yaml:"max_file_size"` // e.g. "1MB"
	Workers      int      `mapstructure:"workers" yaml:"workers"`             // 0 = NumCPU
}

// ChunkingConfig contains chunking defaults.
type ChunkingConfig struct {
	MaxLines int `mapstructure:"max_lines" yaml:"max_lines"` // line-window size
}

// SearchConfig contains text search defaults.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
	ContextLines int `mapstructure:"context_lines" yaml:"context_lines"`
}

// PluginConfig declares one language plugin loaded at startup. Query paths
// are resolved against SearchDirs in order, then the working directory.
type PluginConfig struct {
	Language   string   `mapstructure:"language" yaml:"language"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"` // only for new languages
	Grammar    string   `mapstructure:"grammar" yaml:"grammar"`       // grammar identifier, defaults to language
	Queries    []string `mapstructure:"queries" yaml:"queries"`
	SearchDirs []string `mapstructure:"search_dirs" yaml:"search_dirs"`
}

// WatchConfig contains file watcher configuration.
type WatchConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	DebounceMS int    `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	Ignore     string `mapstructure:"ignore" yaml:"ignore"` // extra glob to ignore
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Exclude: []string{
				"**/vendor/**", "**/node_modules/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/target/**",
				"**/*.min.js", "**/*.min.css",
				"**/package-lock.json", "**/yarn.lock", "**/go.sum",
			},
			UseGitIgnore: true,
			MaxFileSize:  "1MB",
			Workers:      0,
		},
		Chunking: ChunkingConfig{
			MaxLines: 50,
		},
		Search: SearchConfig{
			DefaultLimit: 100,
			ContextLines: 2,
		},
		Watch: WatchConfig{
			Enabled:    false,
			DebounceMS: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .kit directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".kit")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// Load loads configuration from file, falling back to defaults.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Chunking.MaxLines == 0 {
		cfg.Chunking.MaxLines = 50
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 100
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
	if cfg.Index.MaxFileSize == "" {
		cfg.Index.MaxFileSize = "1MB"
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	configDir := ConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	v.Set("index", cfg.Index)
	v.Set("chunking", cfg.Chunking)
	v.Set("search", cfg.Search)
	v.Set("plugins", cfg.Plugins)
	v.Set("watch", cfg.Watch)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Chunking.MaxLines < 0 {
		errs = append(errs, fmt.Errorf("chunking.max_lines must be positive: %d", cfg.Chunking.MaxLines))
	}
	if cfg.Index.Workers < 0 {
		errs = append(errs, fmt.Errorf("index.workers must not be negative: %d", cfg.Index.Workers))
	}
	if _, err := ParseSize(cfg.Index.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("index.max_file_size: %w", err))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid logging level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true, "": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid logging format: %s", cfg.Logging.Format))
	}

	for i, p := range cfg.Plugins {
		if p.Language == "" {
			errs = append(errs, fmt.Errorf("plugins[%d]: language is required", i))
		}
		if len(p.Queries) == 0 {
			errs = append(errs, fmt.Errorf("plugins[%d]: at least one query document is required", i))
		}
	}

	return errs
}

// Hash returns a hash of configuration that affects index content.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%v:%v:%v:%d",
		c.Index.Include,
		c.Index.Exclude,
		c.Index.UseGitIgnore,
		c.Chunking.MaxLines,
	)
	for _, p := range c.Plugins {
		data += fmt.Sprintf(":%s=%v", p.Language, p.Queries)
	}
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Copy creates a deep copy of the config.
func (c *Config) Copy() *Config {
	cp := *c

	cp.Index.Include = append([]string(nil), c.Index.Include...)
	cp.Index.Exclude = append([]string(nil), c.Index.Exclude...)
	if c.Plugins != nil {
		cp.Plugins = make([]PluginConfig, len(c.Plugins))
		for i, p := range c.Plugins {
			q := p
			q.Extensions = append([]string(nil), p.Extensions...)
			q.Queries = append([]string(nil), p.Queries...)
			q.SearchDirs = append([]string(nil), p.SearchDirs...)
			cp.Plugins[i] = q
		}
	}
	return &cp
}
