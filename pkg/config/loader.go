package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrDefaultWritten is returned by Load when no configuration file existed
// and a default one was written in its place. The process should exit and
// let the operator add the upstream credential before restarting.
var ErrDefaultWritten = errors.New("default configuration written, edit it and restart")

// DefaultFileName is the file written when no configuration is found.
const DefaultFileName = "config.yaml"

// defaultFile is the template written by WriteDefault.
const defaultFile = `# copilot-bridge configuration.
server:
  port: 8191
  read_timeout: 30s
  cors_origins: ["*"]

upstream:
  url: https://api.githubcopilot.com/chat
  info_url: https://api.githubcopilot.com/chat/info
  model: copilot-chat
  provider: github
  user_agent: Silly-Tavern-Copilot-Connector/1.0
  # Bearer token sent to the upstream. Required before chat requests succeed.
  credential: ""
  # credential_file: /run/secrets/upstream-token

defaults:
  temperature: 0.7
  max_tokens: 4096

# Log every inbound request body.
debug: false

auth:
  type: none

usage:
  type: memory
  max_records: 10000

observability:
  metrics:
    enabled: true
    path: /metrics
`

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, BRIDGE_CONFIG env, ./config.yaml,
//     /etc/copilot-bridge/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
//
// A missing file is not silently replaced by defaults: a default file is
// written and ErrDefaultWritten is returned.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	filePath, found := discoverConfigFile(configPath)
	if !found {
		if err := WriteDefault(filePath); err != nil {
			return nil, fmt.Errorf("writing default config %s: %w", filePath, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrDefaultWritten, filePath)
	}

	if err := loadYAMLFile(filePath, &cfg); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// WriteDefault writes the default configuration template to path. It never
// overwrites an existing file.
func WriteDefault(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(defaultFile); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. BRIDGE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/copilot-bridge/config.yaml
//
// It returns the path to use and whether a file exists there. When nothing
// exists the returned path is where the default file should be written.
func discoverConfigFile(configPath string) (string, bool) {
	if configPath != "" {
		return configPath, fileExists(configPath)
	}

	if envPath := os.Getenv("BRIDGE_CONFIG"); envPath != "" {
		return envPath, fileExists(envPath)
	}

	candidates := []string{
		DefaultFileName,
		"/etc/copilot-bridge/config.yaml",
	}
	for _, path := range candidates {
		if fileExists(path) {
			return path, true
		}
	}

	return DefaultFileName, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps BRIDGE_* environment variables to config fields.
// Malformed numeric values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	if v := os.Getenv("BRIDGE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_PORT: %w", err))
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BRIDGE_CREDENTIAL"); v != "" {
		cfg.Upstream.Credential = v
	}
	if v := os.Getenv("BRIDGE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("BRIDGE_UPSTREAM_MODEL"); v != "" {
		cfg.Upstream.Model = v
	}
	if v := os.Getenv("BRIDGE_USER_AGENT"); v != "" {
		cfg.Upstream.UserAgent = v
	}
	if v := os.Getenv("BRIDGE_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_TEMPERATURE: %w", err))
		} else {
			cfg.Defaults.Temperature = temp
		}
	}
	if v := os.Getenv("BRIDGE_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_MAX_TOKENS: %w", err))
		} else {
			cfg.Defaults.MaxTokens = n
		}
	}
	if v := os.Getenv("BRIDGE_DEBUG_ALL"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_DEBUG_ALL: %w", err))
		} else {
			cfg.Debug = on
		}
	}
	if v := os.Getenv("BRIDGE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}

	// BRIDGE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("BRIDGE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_API_KEYS: %w", err))
		} else if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	if v := os.Getenv("BRIDGE_RATE_LIMIT_RPM"); v != "" {
		rpm, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BRIDGE_RATE_LIMIT_RPM: %w", err))
		} else {
			cfg.Auth.RateLimit.RequestsPerMinute = rpm
		}
	}
	if v := os.Getenv("BRIDGE_REDIS_ADDR"); v != "" {
		cfg.Auth.RateLimit.Backend = "redis"
		cfg.Auth.RateLimit.Redis.Addr = v
	}
	if v := os.Getenv("BRIDGE_USAGE"); v != "" {
		cfg.Usage.Type = v
	}
	if v := os.Getenv("BRIDGE_USAGE_DSN"); v != "" {
		cfg.Usage.Postgres.DSN = v
	}

	return errors.Join(errs...)
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. An explicit value always wins over its file reference.
func resolveFileReferences(cfg *Config) error {
	// upstream.credential_file -> upstream.credential
	if cfg.Upstream.CredentialFile != "" && cfg.Upstream.Credential == "" {
		val, err := readSecretFile(cfg.Upstream.CredentialFile)
		if err != nil {
			return fmt.Errorf("upstream.credential_file: %w", err)
		}
		cfg.Upstream.Credential = val
	}

	// usage.postgres.dsn_file -> usage.postgres.dsn
	if cfg.Usage.Postgres.DSNFile != "" && cfg.Usage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Usage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("usage.postgres.dsn_file: %w", err)
		}
		cfg.Usage.Postgres.DSN = val
	}

	// auth.rate_limit.redis.password_file -> auth.rate_limit.redis.password
	if cfg.Auth.RateLimit.Redis.PasswordFile != "" && cfg.Auth.RateLimit.Redis.Password == "" {
		val, err := readSecretFile(cfg.Auth.RateLimit.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("auth.rate_limit.redis.password_file: %w", err)
		}
		cfg.Auth.RateLimit.Redis.Password = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
