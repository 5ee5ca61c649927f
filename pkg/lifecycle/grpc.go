package lifecycle

import (
	"context"
	"net"

	"google.golang.org/grpc"
)

// grpcServer adapts *grpc.Server to [Server].
type grpcServer struct {
	srv *grpc.Server
}

// GRPCServer wraps srv so a [Service] can run it. Shutdown waits for
// in-flight RPCs with GracefulStop and falls back to Stop when ctx ends
// first.
func GRPCServer(srv *grpc.Server) Server {
	return &grpcServer{srv: srv}
}

func (g *grpcServer) Serve(ln net.Listener) error {
	return g.srv.Serve(ln)
}

func (g *grpcServer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.srv.Stop()
		<-done
		return ctx.Err()
	}
}
