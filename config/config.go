package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	ServerConfig    ServerConfig    `json:"server"`
	UpstreamConfig  UpstreamConfig  `json:"upstream"`
	PulseConfig     PulseConfig     `json:"pulse"`
	SwapSyncConfig  SwapSyncConfig  `json:"swap_sync"`
	CandleConfig    CandleConfig    `json:"candles"`
	ImageConfig     ImageConfig     `json:"images"`
	DashboardConfig DashboardConfig `json:"dashboard"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL      string `json:"url"`       // full connection string, required
	PoolSize int    `json:"pool_size"` // max connections
}

// RedisConfig holds Redis configuration for the KV cache.
// If URL is empty the process falls back to an in-memory KV cache.
type RedisConfig struct {
	URL      string `json:"url"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

// UpstreamConfig holds API keys and endpoints for the upstream feeds.
// An absent API key disables the corresponding client.
type UpstreamConfig struct {
	SolanaTrackerAPIKey string `json:"solanatracker_api_key"`
	BirdeyeAPIKey       string `json:"birdeye_api_key"`
	CoinGeckoAPIKey     string `json:"coingecko_api_key"`

	SolanaTrackerBaseURL string `json:"solanatracker_base_url"`
	DexScreenerBaseURL   string `json:"dexscreener_base_url"`
	BirdeyeBaseURL       string `json:"birdeye_base_url"`
	CoinGeckoBaseURL     string `json:"coingecko_base_url"`
	PumpPortalWSURL      string `json:"pumpportal_ws_url"`

	RequestTimeout time.Duration `json:"request_timeout"`
}

// PulseConfig drives the pulse sync engine
type PulseConfig struct {
	SyncInterval time.Duration `json:"sync_interval"`

	// Graduating band in USD market cap, half-open [Min, Max)
	GraduationMCMinUSD float64 `json:"graduation_mc_min_usd"`
	GraduationMCMaxUSD float64 `json:"graduation_mc_max_usd"`
	// SOL-denominated market cap at which a NEW token is considered
	// close to graduation by the live ingester
	GraduationProximitySolMC float64 `json:"graduation_proximity_sol_mc"`

	NewTTL        time.Duration `json:"new_ttl"`
	GraduatingTTL time.Duration `json:"graduating_ttl"`
	GraduatedTTL  time.Duration `json:"graduated_ttl"`

	InitialSyncWorkers int `json:"initial_sync_workers"` // K_init
	TailSyncWorkers    int `json:"tail_sync_workers"`    // K_tail
}

// SwapSyncConfig bounds the historical backfill
type SwapSyncConfig struct {
	MaxPages int `json:"max_pages"`
	PageSize int `json:"page_size"`
}

// CandleConfig drives the candle cache engine
type CandleConfig struct {
	LiveRefresh time.Duration `json:"live_refresh"`
}

// ImageConfig drives the IPFS logo fetcher
type ImageConfig struct {
	Gateways []string      `json:"gateways"`
	Timeout  time.Duration `json:"timeout"`
}

// DashboardConfig drives the curated token sync loop
type DashboardConfig struct {
	SyncInterval time.Duration `json:"sync_interval"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if cfg.DatabaseConfig.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	// Database
	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.DatabaseConfig.PoolSize = getEnvIntOrDefault("DATABASE_POOL_SIZE", 10)

	// Redis (optional; absence selects the in-memory KV)
	cfg.RedisConfig.URL = getEnvOrDefault("REDIS_URL", cfg.RedisConfig.URL)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Upstream feeds
	cfg.UpstreamConfig.SolanaTrackerAPIKey = getEnvOrDefault("SOLANATRACKER_API_KEY", cfg.UpstreamConfig.SolanaTrackerAPIKey)
	cfg.UpstreamConfig.BirdeyeAPIKey = getEnvOrDefault("BIRDEYE_API_KEY", cfg.UpstreamConfig.BirdeyeAPIKey)
	cfg.UpstreamConfig.CoinGeckoAPIKey = getEnvOrDefault("COINGECKO_API_KEY", cfg.UpstreamConfig.CoinGeckoAPIKey)
	cfg.UpstreamConfig.SolanaTrackerBaseURL = getEnvOrDefault("SOLANATRACKER_BASE_URL", "https://data.solanatracker.io")
	cfg.UpstreamConfig.DexScreenerBaseURL = getEnvOrDefault("DEXSCREENER_BASE_URL", "https://api.dexscreener.com")
	cfg.UpstreamConfig.BirdeyeBaseURL = getEnvOrDefault("BIRDEYE_BASE_URL", "https://public-api.birdeye.so")
	cfg.UpstreamConfig.CoinGeckoBaseURL = getEnvOrDefault("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3")
	cfg.UpstreamConfig.PumpPortalWSURL = getEnvOrDefault("PUMPPORTAL_WS_URL", "wss://pumpportal.fun/api/data")
	cfg.UpstreamConfig.RequestTimeout = getEnvDurationOrDefault("UPSTREAM_REQUEST_TIMEOUT", 10*time.Second)

	// Pulse sync
	cfg.PulseConfig.SyncInterval = getEnvDurationOrDefault("PULSE_SYNC_INTERVAL", 5*time.Second)
	cfg.PulseConfig.GraduationMCMinUSD = getEnvFloatOrDefault("GRADUATION_MC_MIN_USD", 10_000)
	cfg.PulseConfig.GraduationMCMaxUSD = getEnvFloatOrDefault("GRADUATION_MC_MAX_USD", 69_000)
	cfg.PulseConfig.GraduationProximitySolMC = getEnvFloatOrDefault("GRADUATION_PROXIMITY_SOL_MC", 400)
	cfg.PulseConfig.NewTTL = getEnvDurationOrDefault("PULSE_NEW_TTL", 24*time.Hour)
	cfg.PulseConfig.GraduatingTTL = getEnvDurationOrDefault("PULSE_GRADUATING_TTL", 48*time.Hour)
	cfg.PulseConfig.GraduatedTTL = getEnvDurationOrDefault("PULSE_GRADUATED_TTL", 7*24*time.Hour)
	cfg.PulseConfig.InitialSyncWorkers = getEnvIntOrDefault("PULSE_INITIAL_SYNC_WORKERS", 5)
	cfg.PulseConfig.TailSyncWorkers = getEnvIntOrDefault("PULSE_TAIL_SYNC_WORKERS", 20)

	// Swap backfill
	cfg.SwapSyncConfig.MaxPages = getEnvIntOrDefault("SWAP_BACKFILL_MAX_PAGES", 200)
	cfg.SwapSyncConfig.PageSize = getEnvIntOrDefault("SWAP_BACKFILL_PAGE_SIZE", 100)

	// Candle cache
	cfg.CandleConfig.LiveRefresh = getEnvDurationOrDefault("LIVE_CANDLE_REFRESH", 5*time.Minute)

	// Image fetcher
	gateways := getEnvOrDefault("IMAGE_GATEWAYS", "https://ipfs.io/ipfs/,https://cloudflare-ipfs.com/ipfs/,https://gateway.pinata.cloud/ipfs/")
	cfg.ImageConfig.Gateways = splitAndTrim(gateways)
	cfg.ImageConfig.Timeout = getEnvDurationOrDefault("IMAGE_TIMEOUT", 10*time.Second)

	// Dashboard sync
	cfg.DashboardConfig.SyncInterval = getEnvDurationOrDefault("DASHBOARD_SYNC_INTERVAL", time.Minute)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
