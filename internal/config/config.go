package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/metar-view/internal/runtimeconfig"
)

const (
	defaultPort           = "8080"
	defaultICAO           = "LOWW"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultLogLevel       = "info"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > config file > Defaults
type Config struct {
	Port                 string
	RuntimeConfig        string
	DefaultICAO          string
	RequestTimeout       time.Duration
	SessionTTL           time.Duration
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	LogLevel             string
	RateLimitRPS         float64
	RateLimitBurst       int
}

// fileConfig represents the configuration file structure, YAML or TOML.
type fileConfig struct {
	Port                 string        `yaml:"port" toml:"port"`
	RuntimeConfig        string        `yaml:"runtime_config" toml:"runtime_config"`
	DefaultICAO          string        `yaml:"default_icao" toml:"default_icao"`
	RequestTimeout       string        `yaml:"request_timeout" toml:"request_timeout"`
	SessionTTL           string        `yaml:"session_ttl" toml:"session_ttl"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period" toml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout" toml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout" toml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging" toml:"enable_request_logging"`
	LogLevel             string        `yaml:"log_level" toml:"log_level"`
	RateLimit            fileRateLimit `yaml:"rate_limit" toml:"rate_limit"`
}

// fileRateLimit represents the rate limit section.
type fileRateLimit struct {
	RPS   *float64 `yaml:"rps" toml:"rps"`
	Burst *int     `yaml:"burst" toml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	RuntimeConfig  *string
	DefaultICAO    *string
	RequestTimeout *time.Duration
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > config file > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Load from file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		fileCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		if err := applyFileConfig(&cfg, fileCfg); err != nil {
			return Config{}, fmt.Errorf("apply config file: %w", err)
		}
	}

	// Apply environment variables (override file)
	applyEnvConfig(&cfg)

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		RuntimeConfig:        runtimeconfig.DefaultSource,
		DefaultICAO:          defaultICAO,
		RequestTimeout:       10 * time.Second,
		SessionTTL:           30 * time.Minute,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		LogLevel:             defaultLogLevel,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML or TOML file, chosen by extension.
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &fileCfg); err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}

	return &fileCfg, nil
}

// applyFileConfig applies file configuration to the Config struct.
func applyFileConfig(cfg *Config, fileCfg *fileConfig) error {
	if fileCfg.Port != "" {
		cfg.Port = fileCfg.Port
	}
	if fileCfg.RuntimeConfig != "" {
		cfg.RuntimeConfig = fileCfg.RuntimeConfig
	}
	if fileCfg.DefaultICAO != "" {
		cfg.DefaultICAO = fileCfg.DefaultICAO
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"request_timeout", fileCfg.RequestTimeout, &cfg.RequestTimeout},
		{"session_ttl", fileCfg.SessionTTL, &cfg.SessionTTL},
		{"shutdown_grace_period", fileCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", fileCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", fileCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", fileCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.field = value
	}

	if fileCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *fileCfg.EnableRequestLogging
	}
	if fileCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *fileCfg.RateLimit.RPS
	}
	if fileCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *fileCfg.RateLimit.Burst
	}
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if source := strings.TrimSpace(os.Getenv("RUNTIME_CONFIG")); source != "" {
		cfg.RuntimeConfig = source
	}

	if icao := strings.TrimSpace(os.Getenv("DEFAULT_ICAO")); icao != "" {
		cfg.DefaultICAO = icao
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if timeout := strings.TrimSpace(os.Getenv("REQUEST_TIMEOUT")); timeout != "" {
		if value, err := time.ParseDuration(timeout); err == nil {
			cfg.RequestTimeout = value
		}
	}

	if ttl := strings.TrimSpace(os.Getenv("SESSION_TTL")); ttl != "" {
		if value, err := time.ParseDuration(ttl); err == nil {
			cfg.SessionTTL = value
		}
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RuntimeConfig != nil && *overrides.RuntimeConfig != "" {
		cfg.RuntimeConfig = *overrides.RuntimeConfig
	}

	if overrides.DefaultICAO != nil && *overrides.DefaultICAO != "" {
		cfg.DefaultICAO = *overrides.DefaultICAO
	}

	if overrides.RequestTimeout != nil && *overrides.RequestTimeout > 0 {
		cfg.RequestTimeout = *overrides.RequestTimeout
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if strings.TrimSpace(cfg.DefaultICAO) == "" {
		return fmt.Errorf("default ICAO cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive, got %s", cfg.SessionTTL)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.LogLevel)
	}
	return nil
}
