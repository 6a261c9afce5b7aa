// Package config loads the simulator configuration from an optional YAML
// file, a .env file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete simulator configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Markets   MarketsConfig   `yaml:"markets"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int `yaml:"port"`
	TimeoutSeconds  int `yaml:"timeout_seconds"`
	ShutdownSeconds int `yaml:"shutdown_seconds"`
}

// PortfolioConfig controls the virtual portfolio.
type PortfolioConfig struct {
	InitialBalance Money `yaml:"initial_balance"`
}

// Money is a decimal that decodes from YAML scalars. yaml.v3 cannot decode
// into decimal.Decimal directly.
type Money struct {
	decimal.Decimal
}

func (m *Money) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("config: invalid decimal %q: %w", node.Value, err)
	}
	m.Decimal = d
	return nil
}

// MarketsConfig contains the Gamma API settings.
type MarketsConfig struct {
	GammaBase       string `yaml:"gamma_base"`
	RedisURL        string `yaml:"redis_url"`        // empty disables the cache
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// AnalysisConfig contains the Gemini settings. An empty API key disables
// AI analysis; every other endpoint keeps working.
type AnalysisConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key"`
	Model        string `yaml:"model"`
}

// StorageConfig selects the persistence backend. DatabaseURL takes
// precedence; when empty the simulator uses the SQLite file.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path (missing file is fine, defaults apply),
// loads .env if present, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful-shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// CacheTTL returns the market cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Markets.CacheTTLSeconds) * time.Second
}

// applyEnvOverrides overrides config values from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}
	if v := os.Getenv("INITIAL_BALANCE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Portfolio.InitialBalance = Money{d}
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Markets.RedisURL = v
	}
	if v := os.Getenv("GAMMA_API_URL"); v != "" {
		cfg.Markets.GammaBase = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Analysis.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Analysis.Model = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills in required values left unset.
func setDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.TimeoutSeconds <= 0 {
		cfg.Server.TimeoutSeconds = 120
	}
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 10
	}
	if !cfg.Portfolio.InitialBalance.IsPositive() {
		cfg.Portfolio.InitialBalance = Money{decimal.NewFromInt(100000)}
	}
	if cfg.Markets.GammaBase == "" {
		cfg.Markets.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Markets.CacheTTLSeconds <= 0 {
		cfg.Markets.CacheTTLSeconds = 60
	}
	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "gemini-2.5-flash"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "polyagent.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}
	return nil
}
