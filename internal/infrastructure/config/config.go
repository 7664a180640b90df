// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} expansion
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	host := cfg.IMAP.Host
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	IMAP          IMAPConfig          `yaml:"imap"`
	Matching      MatchingConfig      `yaml:"matching"`
	Scan          ScanConfig          `yaml:"scan"`
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// IMAPConfig holds the mailbox account settings
type IMAPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	ProcessedFolder string        `yaml:"processed_folder"`
	SenderFilter    string        `yaml:"sender_filter"`
	SubjectFilter   string        `yaml:"subject_filter"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// MatchingConfig holds matcher tuning
type MatchingConfig struct {
	Threshold      int    `yaml:"threshold"`
	RunnerUpMargin int    `yaml:"runner_up_margin"`
	Currency       string `yaml:"currency"`
}

// ScanConfig holds pipeline pass settings
type ScanConfig struct {
	// PollInterval between passes; zero means run one pass and exit.
	PollInterval time.Duration `yaml:"poll_interval"`
	PassTimeout  time.Duration `yaml:"pass_timeout"`
	// AllowedSenders restricts processing to these From addresses.
	AllowedSenders []string `yaml:"allowed_senders"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds the operator HTTP API settings
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigError reports a field that fails validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${IMAP_PASSWORD})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		IMAP: IMAPConfig{
			Host:            os.Getenv("IMAP_HOST"),
			Port:            getEnvInt("IMAP_PORT", 993),
			Username:        os.Getenv("IMAP_USERNAME"),
			Password:        os.Getenv("IMAP_PASSWORD"),
			ProcessedFolder: getEnv("IMAP_PROCESSED_FOLDER", "Processed"),
			SenderFilter:    os.Getenv("IMAP_SENDER_FILTER"),
			SubjectFilter:   os.Getenv("IMAP_SUBJECT_FILTER"),
		},
		Matching: MatchingConfig{
			Threshold:      getEnvInt("MATCH_THRESHOLD", 85),
			RunnerUpMargin: getEnvInt("MATCH_RUNNER_UP_MARGIN", 5),
			Currency:       getEnv("MATCH_CURRENCY", "CAD"),
		},
		Scan: ScanConfig{
			PollInterval: getEnvDuration("SCAN_POLL_INTERVAL", 0),
			PassTimeout:  getEnvDuration("SCAN_PASS_TIMEOUT", 2*time.Minute),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILER_DB_PATH", "reconciler.db"),
		},
		API: APIConfig{
			ListenAddr: getEnv("API_LISTEN_ADDR", ":8080"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	if senders := os.Getenv("SCAN_ALLOWED_SENDERS"); senders != "" {
		for _, s := range strings.Split(senders, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Scan.AllowedSenders = append(cfg.Scan.AllowedSenders, s)
			}
		}
	}
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate checks the fields the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.IMAP.Host == "" {
		return &ConfigError{Field: "imap.host", Reason: "is required"}
	}
	if c.IMAP.Username == "" {
		return &ConfigError{Field: "imap.username", Reason: "is required"}
	}
	if c.IMAP.Password == "" {
		return &ConfigError{Field: "imap.password", Reason: "is required"}
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 100 {
		return &ConfigError{Field: "matching.threshold", Reason: "must be in [0,100]"}
	}
	if c.Matching.RunnerUpMargin < 0 || c.Matching.RunnerUpMargin > 100 {
		return &ConfigError{Field: "matching.runner_up_margin", Reason: "must be in [0,100]"}
	}
	if len(c.Matching.Currency) != 3 {
		return &ConfigError{Field: "matching.currency", Reason: "must be a three-letter ISO 4217 code"}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.IMAP.Port == 0 {
		c.IMAP.Port = 993
	}
	if c.IMAP.ProcessedFolder == "" {
		c.IMAP.ProcessedFolder = "Processed"
	}
	if c.Matching.Threshold == 0 {
		c.Matching.Threshold = 85
	}
	if c.Matching.RunnerUpMargin == 0 {
		c.Matching.RunnerUpMargin = 5
	}
	if c.Matching.Currency == "" {
		c.Matching.Currency = "CAD"
	}
	if c.Scan.PassTimeout == 0 {
		c.Scan.PassTimeout = 2 * time.Minute
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "reconciler.db"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvDuration retrieves a duration environment variable with a fallback default
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
