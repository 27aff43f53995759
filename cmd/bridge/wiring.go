package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/copilot-bridge/pkg/auth"
	"github.com/rhuss/copilot-bridge/pkg/auth/anonymous"
	"github.com/rhuss/copilot-bridge/pkg/auth/apikey"
	"github.com/rhuss/copilot-bridge/pkg/auth/jwt"
	"github.com/rhuss/copilot-bridge/pkg/config"
	"github.com/rhuss/copilot-bridge/pkg/storage"
	"github.com/rhuss/copilot-bridge/pkg/storage/memory"
	"github.com/rhuss/copilot-bridge/pkg/storage/postgres"
)

// buildAuth assembles the client authentication middleware and its rate
// limiter. The returned close function releases the limiter's connections.
func buildAuth(ctx context.Context, cfg *config.Config) (func(http.Handler) http.Handler, func(), error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Auth.Type {
	case "none":
		chain.Authenticators = []auth.Authenticator{&anonymous.Authenticator{}}
	case "apikey":
		chain.Authenticators = []auth.Authenticator{apikey.New(cfg.Auth.APIKeys)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.FromConfig(cfg.Auth.JWT))}
	default:
		return nil, nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	limiter, closeLimiter, err := buildLimiter(ctx, cfg.Auth.RateLimit)
	if err != nil {
		return nil, nil, err
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), closeLimiter, nil
}

func buildLimiter(ctx context.Context, cfg config.RateLimitConfig) (auth.RateLimiter, func(), error) {
	noop := func() {}
	if cfg.RequestsPerMinute <= 0 {
		return nil, noop, nil
	}

	switch cfg.Backend {
	case "", "memory":
		return auth.NewInProcessLimiter(cfg.RequestsPerMinute), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter := auth.NewRedisLimiter(client, cfg.RequestsPerMinute)
		if err := limiter.Ping(ctx); err != nil {
			// The limiter fails open, so an unreachable Redis is not fatal.
			slog.Warn("redis rate limiter not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		return limiter, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

// buildLedger opens the configured usage ledger.
func buildLedger(ctx context.Context, cfg *config.Config) (storage.Ledger, error) {
	switch cfg.Usage.Type {
	case "none":
		return storage.Discard, nil
	case "memory":
		return memory.New(cfg.Usage.MaxRecords), nil
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Usage.Postgres.DSN,
			MaxConns:       cfg.Usage.Postgres.MaxConns,
			MigrateOnStart: cfg.Usage.Postgres.MigrateOnStart,
		})
	default:
		return nil, fmt.Errorf("unknown usage type %q", cfg.Usage.Type)
	}
}
