package service

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	"github.com/StricklySoft/academic-platform/pkg/lifecycle"
)

// Health methods stay reachable without a token so orchestrators can
// health-check the service.
var publicGRPCMethods = []string{
	healthpb.Health_Check_FullMethodName,
	healthpb.Health_Watch_FullMethodName,
}

// NewGRPCServer returns a gRPC server whose unary and stream calls are
// authenticated with validator, with the standard health service
// registered. The returned health server starts NOT_SERVING; drive it
// with [HealthStateHandler].
func NewGRPCServer(validator auth.TokenValidator, metrics *auth.Metrics, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	authOpts := []auth.GRPCOption{
		auth.WithPublicMethods(publicGRPCMethods...),
		auth.WithGRPCMetrics(metrics),
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(auth.UnaryServerInterceptor(validator, Name, authOpts...)),
		grpc.ChainStreamInterceptor(auth.StreamServerInterceptor(validator, Name, authOpts...)),
	)
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// HealthStateHandler mirrors lifecycle transitions onto hs: SERVING while
// running, NOT_SERVING otherwise, and a final Shutdown once stopping.
func HealthStateHandler(hs *health.Server) lifecycle.StateChangeHandler {
	return func(_, to lifecycle.State) {
		switch to {
		case lifecycle.StateRunning:
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		case lifecycle.StateStopping, lifecycle.StateStopped, lifecycle.StateFailed:
			hs.Shutdown()
		default:
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
}
