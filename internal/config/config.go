package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a report output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds all configuration for vulhunter
type Config struct {
	// RulesFile is an optional YAML table merged over the built-in rules
	RulesFile string `yaml:"rules_file" env:"VULHUNTER_RULES_FILE"`

	// Analysis limits
	MaxCallDepth   int `yaml:"max_call_depth" env:"VULHUNTER_MAX_CALL_DEPTH"`
	Workers        int `yaml:"workers" env:"VULHUNTER_WORKERS"`
	ParseCacheSize int `yaml:"parse_cache_size" env:"VULHUNTER_PARSE_CACHE_SIZE"`

	// StrictParse skips files whose syntax tree contains errors
	StrictParse bool `yaml:"strict_parse" env:"VULHUNTER_STRICT_PARSE"`

	// SinkContextFile persists discovered user-defined sinks between runs
	SinkContextFile string `yaml:"sink_context_file" env:"VULHUNTER_SINK_CONTEXT_FILE"`

	// Exclude lists extra gitignore-style patterns to skip
	Exclude []string `yaml:"exclude" env:"VULHUNTER_EXCLUDE"`

	// Output
	Format   Format `yaml:"format" env:"VULHUNTER_FORMAT"`
	ShowSafe bool   `yaml:"show_safe" env:"VULHUNTER_SHOW_SAFE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"VULHUNTER_LOG_LEVEL"`
	LogFile  string `yaml:"log_file" env:"VULHUNTER_LOG_FILE"`
	LogJSON  bool   `yaml:"log_json" env:"VULHUNTER_LOG_JSON"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxCallDepth:   16,
		Workers:        4,
		ParseCacheSize: 256,
		StrictParse:    true,
		Format:         FormatText,
		LogLevel:       "info",
	}
}

// globalConfigFilePath returns the global config file path (~/.vulhunter/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vulhunter/config.yaml"
	}
	return filepath.Join(home, ".vulhunter", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.vulhunter/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".vulhunter", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.vulhunter/config.yaml)
// 3. Global config (~/.vulhunter/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigFilePath()} {
		if err := mergeFile(cfg, path, true); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path, false); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VULHUNTER_RULES_FILE"); v != "" {
		cfg.RulesFile = v
	}
	if v := os.Getenv("VULHUNTER_MAX_CALL_DEPTH"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxCallDepth = i
		}
	}
	if v := os.Getenv("VULHUNTER_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("VULHUNTER_PARSE_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.ParseCacheSize = i
		}
	}
	if v := os.Getenv("VULHUNTER_STRICT_PARSE"); v != "" {
		cfg.StrictParse = parseBool(v)
	}
	if v := os.Getenv("VULHUNTER_SINK_CONTEXT_FILE"); v != "" {
		cfg.SinkContextFile = v
	}
	if v := os.Getenv("VULHUNTER_EXCLUDE"); v != "" {
		cfg.Exclude = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Exclude = append(cfg.Exclude, p)
			}
		}
	}
	if v := os.Getenv("VULHUNTER_FORMAT"); v != "" {
		cfg.Format = Format(v)
	}
	if v := os.Getenv("VULHUNTER_SHOW_SAFE"); v != "" {
		cfg.ShowSafe = parseBool(v)
	}
	if v := os.Getenv("VULHUNTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VULHUNTER_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("VULHUNTER_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", c.Format)
	}
	if c.MaxCallDepth <= 0 {
		return fmt.Errorf("max_call_depth must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.ParseCacheSize <= 0 {
		return fmt.Errorf("parse_cache_size must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
