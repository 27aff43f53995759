// Package config provides configuration for the bridge.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified); when no file
//     exists a commented default file is written and loading fails with
//     ErrDefaultWritten so the operator can add the credential
//  3. Environment variable overrides (BRIDGE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// The resulting *Config is built once at startup and passed explicitly to
// the components that need it. Nothing reads configuration globally.
package config

import "time"

// Config holds all configuration for the bridge.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Defaults      Defaults            `yaml:"defaults"`
	Debug         bool                `yaml:"debug"`
	Auth          AuthConfig          `yaml:"auth"`
	Usage         UsageConfig         `yaml:"usage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8191
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0 (streams are unbounded)
	MaxBodySize  int64         `yaml:"max_body_size"` // default: 100 MiB
	CORSOrigins  []string      `yaml:"cors_origins"`  // default: ["*"]
}

// UpstreamConfig describes the chat API requests are forwarded to.
type UpstreamConfig struct {
	URL            string        `yaml:"url"`
	InfoURL        string        `yaml:"info_url"`
	Model          string        `yaml:"model"`
	Provider       string        `yaml:"provider"` // owned_by in /v1/models
	UserAgent      string        `yaml:"user_agent"`
	Credential     string        `yaml:"credential"`
	CredentialFile string        `yaml:"credential_file"` // _file variant for credential
	Timeout        time.Duration `yaml:"timeout"`         // default: 0 (none)
}

// Defaults are the sampling parameters used when a request omits them.
type Defaults struct {
	Temperature float64 `yaml:"temperature"` // default: 0.7
	MaxTokens   int     `yaml:"max_tokens"`  // default: 4096
}

// AuthConfig holds settings for authenticating callers of the bridge.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single client API key.
type APIKeyConfig struct {
	Key     string `yaml:"key" json:"key"`
	KeyFile string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject string `yaml:"subject" json:"subject"`
}

// JWTConfig configures bearer JWT validation against a JWKS endpoint.
type JWTConfig struct {
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	JWKSURL   string        `yaml:"jwks_url"`
	UserClaim string        `yaml:"user_claim"` // default: "sub"
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // default: 1h
}

// RateLimitConfig limits chat requests per authenticated subject.
type RateLimitConfig struct {
	RequestsPerMinute int         `yaml:"requests_per_minute"` // 0 disables limiting
	Backend           string      `yaml:"backend"`             // "memory" or "redis", default: "memory"
	Redis             RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the shared limiter.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`
	DB           int    `yaml:"db"`
}

// UsageConfig selects the usage ledger backend.
type UsageConfig struct {
	Type       string         `yaml:"type"`        // "none", "memory" or "postgres", default: "memory"
	MaxRecords int            `yaml:"max_records"` // for memory ledger, default: 10000
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Default returns a Config with all default values filled in.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8191,
			ReadTimeout: 30 * time.Second,
			MaxBodySize: 100 << 20,
			CORSOrigins: []string{"*"},
		},
		Upstream: UpstreamConfig{
			URL:       "https://api.githubcopilot.com/chat",
			InfoURL:   "https://api.githubcopilot.com/chat/info",
			Model:     "copilot-chat",
			Provider:  "github",
			UserAgent: "Silly-Tavern-Copilot-Connector/1.0",
		},
		Defaults: Defaults{
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				Backend: "memory",
			},
		},
		Usage: UsageConfig{
			Type:       "memory",
			MaxRecords: 10000,
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// HasCredential reports whether an upstream credential is configured.
func (c *Config) HasCredential() bool {
	return c.Upstream.Credential != ""
}
