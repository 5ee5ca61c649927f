// Command assessment-service runs the assessment service, which
// re-validates the bearer token of every request it receives over HTTP
// and gRPC.
//
//	JWT_PUBLIC_KEY=... go run ./cmd/assessment-service
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

	"github.com/StricklySoft/academic-platform/internal/service"
	"github.com/StricklySoft/academic-platform/pkg/auth"
	"github.com/StricklySoft/academic-platform/pkg/config"
	"github.com/StricklySoft/academic-platform/pkg/lifecycle"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("assessment service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var cfg service.Config
	if err := config.New().WithDotEnv(".env").Load(&cfg); err != nil {
		return err
	}

	keys := auth.NewPublicKeyProvider(cfg.PublicKey)
	validator, err := auth.NewRSAValidator(cfg.JWT, keys)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	authMetrics := auth.NewMetrics(registry)

	// health is assigned once the service is built; the handler only
	// consults it while serving.
	var svc *lifecycle.Service
	health := healthFunc(func(ctx context.Context) error { return svc.Health(ctx) })

	builder := lifecycle.NewServiceBuilder(service.Name, version).
		WithServer("http", cfg.Addr, &http.Server{
			Handler: service.Handler(validator, health, registry,
				auth.WithMetrics(authMetrics),
				auth.WithLogger(logger),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}).
		WithShutdownTimeout(cfg.ShutdownTimeout).
		WithLogger(logger).
		WithOnStart(func(context.Context) error {
			_, err := keys.PublicKey()
			return err
		}).
		OnStateChange(func(old, new lifecycle.State) {
			logger.Info("state transition", "from", old.String(), "to", new.String())
		})

	if cfg.GRPCAddr != "" {
		grpcSrv, hs := service.NewGRPCServer(validator, authMetrics)
		builder = builder.
			WithServer("grpc", cfg.GRPCAddr, lifecycle.GRPCServer(grpcSrv)).
			OnStateChange(service.HealthStateHandler(hs))
	}

	svc, err = builder.Build()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }
