package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/copilot-bridge/pkg/config"
	"github.com/rhuss/copilot-bridge/pkg/debug"
	"github.com/rhuss/copilot-bridge/pkg/storage"
	transporthttp "github.com/rhuss/copilot-bridge/pkg/transport/http"
	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

// ledgerProbeInterval is how often the usage ledger's health is checked
// while serving.
const ledgerProbeInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.port (e.g. 127.0.0.1:8191)")
	return cmd
}

func serve(ctx context.Context, addr string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		return err
	}
	debug.Init(cfg.Debug, "")

	if !cfg.HasCredential() {
		slog.Warn("no upstream credential configured, chat requests will be rejected with 401")
	}

	client := upstream.NewClient(cfg.Upstream)
	defer client.Close()

	authMW, closeAuth, err := buildAuth(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	defer closeAuth()

	ledger, err := buildLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configuring usage ledger: %w", err)
	}
	defer ledger.Close()

	logger := slog.Default().With("component", "http")
	adapter := transporthttp.NewAdapter(cfg, client,
		transporthttp.WithAuth(authMW),
		transporthttp.WithLedger(ledger, cfg.Usage.Type),
		transporthttp.WithAdapterLogger(logger),
	)

	serverOpts := []transporthttp.ServerOption{transporthttp.WithLogger(logger)}
	if addr != "" {
		serverOpts = append(serverOpts, transporthttp.WithAddr(addr))
	}
	srv := transporthttp.NewServer(adapter, transporthttp.ServerConfigFrom(cfg.Server), serverOpts...)

	slog.Info("bridge configured",
		"port", cfg.Server.Port,
		"upstream", cfg.Upstream.URL,
		"model", cfg.Upstream.Model,
		"auth", cfg.Auth.Type,
		"usage", cfg.Usage.Type,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		probeLedger(gctx, ledger, cfg.Usage.Type)
		return nil
	})
	return g.Wait()
}

// probeLedger logs ledger health transitions until ctx ends.
func probeLedger(ctx context.Context, ledger storage.Ledger, backend string) {
	ticker := time.NewTicker(ledgerProbeInterval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := ledger.HealthCheck(probeCtx)
		cancel()

		switch {
		case err != nil && healthy:
			slog.Error("usage ledger unhealthy", "backend", backend, "error", err)
		case err == nil && !healthy:
			slog.Info("usage ledger recovered", "backend", backend)
		}
		healthy = err == nil
	}
}
