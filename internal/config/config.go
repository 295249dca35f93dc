// Package config loads application configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Scan       ScanConfig       `yaml:"scan"`
	Protection ProtectionConfig `yaml:"protection"`
	Actions    ActionsConfig    `yaml:"actions"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings for the audit log.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DirectoryConfig holds LDAP connection settings. Credentials are expected
// to be injected by the calling environment (env vars or a secrets mount),
// not committed to the config file.
type DirectoryConfig struct {
	URL            string   `yaml:"url"`
	BindDN         string   `yaml:"bind_dn"`
	BindPassword   string   `yaml:"bind_password"`
	BaseDN         string   `yaml:"base_dn"`
	ServerHints    []string `yaml:"server_hints"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// ScanConfig holds defaults applied when a scan request omits them.
type ScanConfig struct {
	DefaultMode          string `yaml:"default_mode"`
	DefaultThresholdDays int    `yaml:"default_threshold_days"`
	IncludeNeverLoggedOn bool   `yaml:"include_never_logged_on"`
}

// ProtectionConfig holds protected-path rules. Rules listed inline and
// rules read from the file are combined; the file is watched for changes.
type ProtectionConfig struct {
	Rules     []string `yaml:"rules"`
	RulesFile string   `yaml:"rules_file"`
}

// ActionsConfig holds batch-execution settings.
type ActionsConfig struct {
	MutationsPerSecond float64 `yaml:"mutations_per_second"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/adsweep.db",
		},
		Directory: DirectoryConfig{
			TimeoutSeconds: 30,
		},
		Scan: ScanConfig{
			DefaultMode:          "inactive",
			DefaultThresholdDays: 180,
		},
		Actions: ActionsConfig{
			MutationsPerSecond: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("ADS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ADS_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("ADS_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ADS_LDAP_URL"); v != "" {
		c.Directory.URL = v
	}
	if v := os.Getenv("ADS_LDAP_BIND_DN"); v != "" {
		c.Directory.BindDN = v
	}
	if v := os.Getenv("ADS_LDAP_BIND_PASSWORD"); v != "" {
		c.Directory.BindPassword = v
	}
	if v := os.Getenv("ADS_LDAP_BASE_DN"); v != "" {
		c.Directory.BaseDN = v
	}
	if v := os.Getenv("ADS_LDAP_SERVER_HINTS"); v != "" {
		c.Directory.ServerHints = splitList(v)
	}
	if v := os.Getenv("ADS_SCAN_THRESHOLD_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.Scan.DefaultThresholdDays = days
		}
	}
	if v := os.Getenv("ADS_PROTECTED_PATHS"); v != "" {
		c.Protection.Rules = splitList(v)
	}
	if v := os.Getenv("ADS_PROTECTED_PATHS_FILE"); v != "" {
		c.Protection.RulesFile = v
	}
	if v := os.Getenv("ADS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ADS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Scan.DefaultThresholdDays <= 0 {
		return fmt.Errorf("default scan threshold must be positive, got %d", c.Scan.DefaultThresholdDays)
	}
	if c.Directory.TimeoutSeconds <= 0 {
		c.Directory.TimeoutSeconds = 30
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
