package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all islamcheck configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream" yaml:"upstream"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	FactCheck FactCheckConfig `mapstructure:"factcheck" yaml:"factcheck"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	PublicURL      string        `mapstructure:"public_url" yaml:"public_url"` // overrides request-derived base URL in SEO output
	Debug          bool          `mapstructure:"debug" yaml:"debug"`           // include failure context in error bodies
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PageMaxAge     time.Duration `mapstructure:"page_max_age" yaml:"page_max_age"`
}

// UpstreamConfig describes the LLM completion endpoint
type UpstreamConfig struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"` // openrouter, openai, anthropic, ollama
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	Referer           string        `mapstructure:"referer" yaml:"referer"`
	Title             string        `mapstructure:"title" yaml:"title"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	Jitter            bool          `mapstructure:"jitter" yaml:"jitter"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"` // 0 disables pacing
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	HTTPProxy         string        `mapstructure:"http_proxy" yaml:"http_proxy"`
	HTTPSProxy        string        `mapstructure:"https_proxy" yaml:"https_proxy"`
	NoProxy           string        `mapstructure:"no_proxy" yaml:"no_proxy"`
}

// StorageConfig locates the SQLite database
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CacheConfig controls the in-memory read cache in front of SQLite
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL             time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// SearchConfig controls the full-text claim index
type SearchConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	IndexPath string `mapstructure:"index_path" yaml:"index_path"` // empty = in-memory
}

// FactCheckConfig bounds claim input and batch processing
type FactCheckConfig struct {
	MaxClaimLength int `mapstructure:"max_claim_length" yaml:"max_claim_length"`
	Workers        int `mapstructure:"workers" yaml:"workers"`
}

// LoggingConfig selects the zap encoder and level
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // json, console
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			MaxConnections: 256,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   3 * time.Minute, // upstream retries can take a while
			PageMaxAge:     time.Hour,
		},
		Upstream: UpstreamConfig{
			Provider:          "openrouter",
			Model:             "deepseek/deepseek-r1-zero:free",
			BaseURL:           "https://openrouter.ai/api/v1",
			Referer:           "http://localhost:8000",
			Title:             "Islam Fact Checker",
			Timeout:           90 * time.Second,
			MaxAttempts:       3,
			InitialBackoff:    time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Storage: StorageConfig{
			Path: "./data/factcheck.db",
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Search: SearchConfig{
			Enabled:   true,
			IndexPath: "./data/claims.bleve",
		},
		FactCheck: FactCheckConfig{
			MaxClaimLength: 1000,
			Workers:        4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate reports every configuration problem found
func (c *Config) Validate() []error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path must not be empty"))
	} else if c.Storage.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.Storage.Path), 0755); err != nil {
			errs = append(errs, fmt.Errorf("create storage directory: %w", err))
		}
	}
	if c.Upstream.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_attempts must be at least 1"))
	}
	if c.Upstream.InitialBackoff < 0 {
		errs = append(errs, fmt.Errorf("upstream.initial_backoff must not be negative"))
	}
	if c.FactCheck.MaxClaimLength < 1 {
		errs = append(errs, fmt.Errorf("factcheck.max_claim_length must be positive"))
	}
	return errs
}

// Redacted returns a copy safe for display
func (c Config) Redacted() Config {
	if c.Upstream.APIKey != "" {
		c.Upstream.APIKey = "********"
	}
	return c
}
