// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 5m, commits can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// ImportConfig holds ingestion, enrichment and commit settings.
type ImportConfig struct {
	// MaxFileSize is the maximum upload or download size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// Timeout bounds one ingestion from parse to persisted job (default: 5m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"5m"`

	// FetchTimeout bounds one shared-sheet download (default: 15s)
	FetchTimeout time.Duration `env:"IMPORT_FETCH_TIMEOUT" default:"15s"`

	// SheetsBaseURL is the host serving spreadsheet CSV exports
	SheetsBaseURL string `env:"IMPORT_SHEETS_BASE_URL" default:"https://docs.google.com"`

	// ValidationWorkers caps parallel row validation; 0 means GOMAXPROCS (default: 0)
	ValidationWorkers int `env:"IMPORT_VALIDATION_WORKERS" default:"0"`

	// EnrichOnIngest enables store-name lookups when a request does not say (default: false)
	EnrichOnIngest bool `env:"IMPORT_ENRICH_ON_INGEST" default:"false"`

	// EnrichConcurrency caps parallel store-page lookups (default: 4)
	EnrichConcurrency int `env:"IMPORT_ENRICH_CONCURRENCY" default:"4"`

	// EnrichTimeout bounds one store-page lookup (default: 5s)
	EnrichTimeout time.Duration `env:"IMPORT_ENRICH_TIMEOUT" default:"5s"`

	// EnrichAllowPrivate permits lookups against private addresses (default: false)
	EnrichAllowPrivate bool `env:"IMPORT_ENRICH_ALLOW_PRIVATE" default:"false"`

	// MaxConcurrentCommits is the maximum number of parallel commits (default: 4)
	MaxConcurrentCommits int `env:"IMPORT_MAX_CONCURRENT_COMMITS" default:"4"`

	// CommitWaitTime is how long to wait for a commit slot (default: 30s)
	CommitWaitTime time.Duration `env:"IMPORT_COMMIT_WAIT_TIME" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of name:key pairs. The name is the
	// identity recorded on jobs created or committed with that key.
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KeyNames parses APIKeys into a key -> name map.
func (c *SecurityConfig) KeyNames() (map[string]string, error) {
	out := make(map[string]string, len(c.APIKeys))
	for i, entry := range c.APIKeys {
		name, key, ok := strings.Cut(entry, ":")
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("API_KEYS entry %d must be name:key", i+1)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("API_KEYS entry %d (%s) repeats a key", i+1, name)
		}
		out[key] = name
	}
	return out, nil
}
