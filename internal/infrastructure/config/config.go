package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig
	Storage   StorageConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// CORSOrigins restricts the JSON API to these origins, empty for any
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`
	// TraceRequests logs one span per HTTP request
	TraceRequests bool `envconfig:"TRACE_REQUESTS" default:"false"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	// File enables rotating file output in addition to stdout
	File string `envconfig:"LOG_FILE"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// GatewayConfig holds relay and pipeline configuration.
type GatewayConfig struct {
	// RelayCatalog is an optional YAML, TOML or JSON relay list
	RelayCatalog string        `envconfig:"RELAY_CATALOG"`
	DefaultRelay string        `envconfig:"DEFAULT_RELAY" default:"allorigins"`
	ProbeURL     string        `envconfig:"PROBE_URL" default:"https://example.com/"`
	ProbeTimeout time.Duration `envconfig:"PROBE_TIMEOUT" default:"5s"`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"45s"`
	// UpstreamRPS caps requests per second to all relays, 0 for unlimited
	UpstreamRPS      float64  `envconfig:"UPSTREAM_RPS" default:"0"`
	SheetConcurrency int      `envconfig:"SHEET_CONCURRENCY" default:"8"`
	SearchTemplate   string   `envconfig:"SEARCH_TEMPLATE" default:"https://duckduckgo.com/html/?q="`
	Blocklist        []string `envconfig:"BLOCKLIST"`
	UserAgent        string   `envconfig:"USER_AGENT" default:"Mozilla/5.0 (compatible; AuroraGateway/1.0)"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// SettingsPath is the settings store file, empty for memory only
	SettingsPath string        `envconfig:"SETTINGS_PATH" default:"/tmp/aurora-gateway/settings.json"`
	BlobTTL      time.Duration `envconfig:"BLOB_TTL" default:"30m"`
	BlobMaxBytes int64         `envconfig:"BLOB_MAX_BYTES" default:"67108864"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Gateway.Blocklist = compact(cfg.Gateway.Blocklist)
	cfg.Server.CORSOrigins = compact(cfg.Server.CORSOrigins)
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Gateway: GatewayConfig{
			DefaultRelay:     "allorigins",
			ProbeURL:         "https://example.com/",
			ProbeTimeout:     5 * time.Second,
			FetchTimeout:     45 * time.Second,
			SheetConcurrency: 8,
			SearchTemplate:   "https://duckduckgo.com/html/?q=",
			UserAgent:        "Mozilla/5.0 (compatible; AuroraGateway/1.0)",
		},
		Storage: StorageConfig{
			SettingsPath: "/tmp/aurora-gateway/settings.json",
			BlobTTL:      30 * time.Minute,
			BlobMaxBytes: 64 << 20,
		},
	}
}

func compact(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
