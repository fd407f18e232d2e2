// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Base URLs for the data providers
	AaveURL     string
	CompoundURL string
	LlamaURL    string

	// API keys for providers that require one
	APIKeys map[string]string

	// MockMode serves the static fixture set only, without live fetches
	MockMode bool

	// Request timeout for provider fetches
	RequestTimeout time.Duration

	// TTL for cached provider responses
	CacheTTL time.Duration

	// Feature toggles
	EnableCircuitBreaker bool
	EnableValidation     bool
	EnableMetrics        bool

	// Circuit breaker thresholds
	MaxAPY            float64
	MaxTVLChange      float64
	MinProviderCount  int
	CircuitResetDelay time.Duration

	// Rate limiting for the HTTP API
	RateLimitRPS   float64
	RateLimitBurst int

	// Local investment store
	StorePath     string
	StoreLockPath string

	// Simulation playback interval per animated day
	PlaybackInterval time.Duration

	// Portfolio history recorder
	HistoryInterval  time.Duration
	HistoryMaxPoints int
	WebhookURL       string
	WebhookAPIKey    string
	WebhookBatchSize int

	// OpenTelemetry endpoint for observability
	OtelEndpoint string
}

// fileConfig mirrors the optional YAML config file. Every field is
// optional; unset fields keep their defaults.
type fileConfig struct {
	Port     string `yaml:"port"`
	Timeout  string `yaml:"timeout"`
	MockMode *bool  `yaml:"mock_mode"`
	Cache    struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Store struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Providers struct {
		Aave struct {
			URL       string `yaml:"url"`
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"aave"`
		Compound struct {
			URL string `yaml:"url"`
		} `yaml:"compound"`
		DefiLlama struct {
			URL string `yaml:"url"`
		} `yaml:"defillama"`
	} `yaml:"providers"`
	Breaker struct {
		Enabled      *bool   `yaml:"enabled"`
		MaxAPY       float64 `yaml:"max_apy"`
		MaxTVLChange float64 `yaml:"max_tvl_change"`
		MinProviders int     `yaml:"min_providers"`
		ResetDelay   string  `yaml:"reset_delay"`
	} `yaml:"breaker"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	History struct {
		Interval      string `yaml:"interval"`
		MaxPoints     int    `yaml:"max_points"`
		WebhookURL    string `yaml:"webhook_url"`
		WebhookAPIKey string `yaml:"webhook_api_key"`
	} `yaml:"history"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the optional YAML file, then environment variable overrides.
func Load() Config {
	cfg := defaults()

	path := GetEnvOrDefault("YIELDSNAP_CONFIG", defaultConfigPath())
	if err := applyFile(path, &cfg); err != nil {
		// A broken config file should not take the service down
		fmt.Fprintf(os.Stderr, "config file ignored: %v\n", err)
	}

	applyEnv(&cfg)
	return cfg
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Port:                 "8080",
		AaveURL:              "https://aave-api-v2.aave.com",
		CompoundURL:          "https://api.compound.finance",
		LlamaURL:             "https://yields.llama.fi",
		APIKeys:              map[string]string{},
		MockMode:             false,
		RequestTimeout:       10 * time.Second,
		CacheTTL:             5 * time.Minute,
		EnableCircuitBreaker: true,
		EnableValidation:     true,
		EnableMetrics:        true,
		MaxAPY:               1000.0, // percent
		MaxTVLChange:         0.5,    // 50% swing between fetches
		MinProviderCount:     2,
		CircuitResetDelay:    5 * time.Minute,
		RateLimitRPS:         10.0,
		RateLimitBurst:       20,
		StorePath:            filepath.Join(dataDir, "portfolio.db"),
		StoreLockPath:        filepath.Join(dataDir, "portfolio.lock"),
		PlaybackInterval:     150 * time.Millisecond,
		HistoryInterval:      time.Minute,
		HistoryMaxPoints:     500,
		WebhookBatchSize:     50,
	}
}

func defaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "yieldsnap", "config.yaml")
}

func defaultDataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "yieldsnap")
}

func applyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if fc.MockMode != nil {
		cfg.MockMode = *fc.MockMode
	}
	if fc.Cache.TTL != "" {
		d, err := time.ParseDuration(fc.Cache.TTL)
		if err != nil {
			return fmt.Errorf("config cache.ttl: %w", err)
		}
		cfg.CacheTTL = d
	}
	if fc.Store.Path != "" {
		cfg.StorePath = fc.Store.Path
	}
	if fc.Store.LockPath != "" {
		cfg.StoreLockPath = fc.Store.LockPath
	}
	if fc.Providers.Aave.URL != "" {
		cfg.AaveURL = fc.Providers.Aave.URL
	}
	if fc.Providers.Aave.APIKey != "" {
		cfg.APIKeys["aave"] = fc.Providers.Aave.APIKey
	}
	if fc.Providers.Aave.APIKeyEnv != "" {
		cfg.APIKeys["aave"] = os.Getenv(fc.Providers.Aave.APIKeyEnv)
	}
	if fc.Providers.Compound.URL != "" {
		cfg.CompoundURL = fc.Providers.Compound.URL
	}
	if fc.Providers.DefiLlama.URL != "" {
		cfg.LlamaURL = fc.Providers.DefiLlama.URL
	}
	if fc.Breaker.Enabled != nil {
		cfg.EnableCircuitBreaker = *fc.Breaker.Enabled
	}
	if fc.Breaker.MaxAPY > 0 {
		cfg.MaxAPY = fc.Breaker.MaxAPY
	}
	if fc.Breaker.MaxTVLChange > 0 {
		cfg.MaxTVLChange = fc.Breaker.MaxTVLChange
	}
	if fc.Breaker.MinProviders > 0 {
		cfg.MinProviderCount = fc.Breaker.MinProviders
	}
	if fc.Breaker.ResetDelay != "" {
		d, err := time.ParseDuration(fc.Breaker.ResetDelay)
		if err != nil {
			return fmt.Errorf("config breaker.reset_delay: %w", err)
		}
		cfg.CircuitResetDelay = d
	}
	if fc.RateLimit.RPS > 0 {
		cfg.RateLimitRPS = fc.RateLimit.RPS
	}
	if fc.RateLimit.Burst > 0 {
		cfg.RateLimitBurst = fc.RateLimit.Burst
	}
	if fc.History.Interval != "" {
		d, err := time.ParseDuration(fc.History.Interval)
		if err != nil {
			return fmt.Errorf("config history.interval: %w", err)
		}
		cfg.HistoryInterval = d
	}
	if fc.History.MaxPoints > 0 {
		cfg.HistoryMaxPoints = fc.History.MaxPoints
	}
	if fc.History.WebhookURL != "" {
		cfg.WebhookURL = fc.History.WebhookURL
	}
	if fc.History.WebhookAPIKey != "" {
		cfg.WebhookAPIKey = fc.History.WebhookAPIKey
	}

	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = GetEnvOrDefault("PORT", cfg.Port)
	cfg.AaveURL = GetEnvOrDefault("AAVE_URL", cfg.AaveURL)
	cfg.CompoundURL = GetEnvOrDefault("COMPOUND_URL", cfg.CompoundURL)
	cfg.LlamaURL = GetEnvOrDefault("DEFILLAMA_URL", cfg.LlamaURL)
	cfg.MockMode = GetEnvAsBool("MOCK_MODE", cfg.MockMode)
	cfg.RequestTimeout = GetEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.CacheTTL = GetEnvAsDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.EnableCircuitBreaker = GetEnvAsBool("ENABLE_CIRCUIT_BREAKER", cfg.EnableCircuitBreaker)
	cfg.EnableValidation = GetEnvAsBool("ENABLE_VALIDATION", cfg.EnableValidation)
	cfg.EnableMetrics = GetEnvAsBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.MaxAPY = GetEnvAsFloat("MAX_APY", cfg.MaxAPY)
	cfg.MaxTVLChange = GetEnvAsFloat("MAX_TVL_CHANGE", cfg.MaxTVLChange)
	cfg.MinProviderCount = GetEnvAsInt("MIN_PROVIDER_COUNT", cfg.MinProviderCount)
	cfg.CircuitResetDelay = GetEnvAsDuration("CIRCUIT_RESET_DELAY", cfg.CircuitResetDelay)
	cfg.RateLimitRPS = GetEnvAsFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = GetEnvAsInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.StorePath = GetEnvOrDefault("STORE_PATH", cfg.StorePath)
	cfg.StoreLockPath = GetEnvOrDefault("STORE_LOCK_PATH", cfg.StoreLockPath)
	cfg.PlaybackInterval = GetEnvAsDuration("PLAYBACK_INTERVAL", cfg.PlaybackInterval)
	cfg.HistoryInterval = GetEnvAsDuration("HISTORY_INTERVAL", cfg.HistoryInterval)
	cfg.HistoryMaxPoints = GetEnvAsInt("HISTORY_MAX_POINTS", cfg.HistoryMaxPoints)
	cfg.WebhookURL = GetEnvOrDefault("WEBHOOK_URL", cfg.WebhookURL)
	cfg.WebhookAPIKey = GetEnvOrDefault("WEBHOOK_API_KEY", cfg.WebhookAPIKey)
	cfg.WebhookBatchSize = GetEnvAsInt("WEBHOOK_BATCH_SIZE", cfg.WebhookBatchSize)
	cfg.OtelEndpoint = GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)

	if raw := os.Getenv("API_KEYS"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &cfg.APIKeys)
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
