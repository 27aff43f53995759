package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
//
// A missing upstream credential is not a validation error: the server
// starts and answers chat requests with 401 until one is configured.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	if c.Upstream.URL == "" {
		errs = append(errs, fmt.Errorf("upstream.url is required"))
	} else if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.url must be an absolute URL, got %q", c.Upstream.URL))
	}
	if c.Upstream.Model == "" {
		errs = append(errs, fmt.Errorf("upstream.model is required"))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must be >= 0, got %s", c.Upstream.Timeout))
	}

	if c.Defaults.Temperature < 0 {
		errs = append(errs, fmt.Errorf("defaults.temperature must be >= 0, got %g", c.Defaults.Temperature))
	}
	if c.Defaults.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("defaults.max_tokens must be >= 0, got %d", c.Defaults.MaxTokens))
	}

	switch c.Auth.Type {
	case "none", "apikey":
		// valid
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}

	switch c.Auth.RateLimit.Backend {
	case "memory", "":
		// valid
	case "redis":
		if c.Auth.RateLimit.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("auth.rate_limit.redis.addr is required when auth.rate_limit.backend is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.rate_limit.backend must be \"memory\" or \"redis\", got %q", c.Auth.RateLimit.Backend))
	}

	switch c.Usage.Type {
	case "none", "memory":
		// valid
	case "postgres":
		if c.Usage.Postgres.DSN == "" && c.Usage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("usage.postgres.dsn or usage.postgres.dsn_file is required when usage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("usage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Usage.Type))
	}

	return errors.Join(errs...)
}
