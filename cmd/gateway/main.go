// Command gateway runs the platform's API gateway: it authenticates
// requests against the route-protection matrix and forwards them, with
// identity headers, to the backing services.
//
// Configuration comes from the environment and an optional .env file:
//
//	JWT_PUBLIC_KEY=... GATEWAY_PROFILE=docker go run ./cmd/gateway
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	"github.com/StricklySoft/academic-platform/pkg/config"
	"github.com/StricklySoft/academic-platform/pkg/gateway"
	"github.com/StricklySoft/academic-platform/pkg/lifecycle"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var cfg gateway.Config
	if err := config.New().WithDotEnv(".env").Load(&cfg); err != nil {
		return err
	}

	table, err := cfg.Table()
	if err != nil {
		return err
	}
	targets, err := cfg.ResolveTargets()
	if err != nil {
		return err
	}

	keys := auth.NewPublicKeyProvider(cfg.PublicKey)
	validator, err := auth.NewRSAValidator(cfg.JWT, keys)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw, err := gateway.New(table, targets, validator,
		gateway.WithTransport(gateway.NewTransport(cfg.UpstreamTimeout)),
		gateway.WithSelfHandler(gateway.NewSelfHandler(table, registry)),
		gateway.WithMetrics(gateway.NewMetrics(registry)),
		gateway.WithAuthMetrics(auth.NewMetrics(registry)),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	svc, err := lifecycle.NewServiceBuilder("gateway", version).
		WithServer("http", cfg.Addr, &http.Server{
			Handler:           gw,
			ReadHeaderTimeout: 10 * time.Second,
		}).
		WithShutdownTimeout(cfg.ShutdownTimeout).
		WithLogger(logger).
		WithOnStart(func(ctx context.Context) error {
			// Fail fast on an unusable key instead of on the first request.
			if _, err := keys.PublicKey(); err != nil {
				return err
			}
			logger.InfoContext(ctx, "gateway routes loaded",
				"routes", len(table.Rules()),
				"profile", cfg.Profile,
			)
			return nil
		}).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("state transition", "from", old.String(), "to", new.String())
		}).
		Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
