package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// GRPCOption configures the server interceptors.
type GRPCOption func(*grpcOptions)

type grpcOptions struct {
	public  map[string]bool
	metrics *Metrics
}

// WithPublicMethods lists full method names ("/package.Service/Method")
// served without authentication, such as the gRPC health service.
func WithPublicMethods(methods ...string) GRPCOption {
	return func(o *grpcOptions) {
		for _, m := range methods {
			o.public[m] = true
		}
	}
}

// WithGRPCMetrics records outcomes and validation latency.
func WithGRPCMetrics(m *Metrics) GRPCOption {
	return func(o *grpcOptions) { o.metrics = m }
}

func newGRPCOptions(opts []GRPCOption) grpcOptions {
	o := grpcOptions{public: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// UnaryServerInterceptor authenticates unary calls the way
// [HTTPMiddleware] authenticates HTTP requests. Rejections are
// codes.Unauthenticated with the same messages as the HTTP filter.
func UnaryServerInterceptor(validator TokenValidator, serviceName string, opts ...GRPCOption) grpc.UnaryServerInterceptor {
	o := newGRPCOptions(opts)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if o.public[info.FullMethod] {
			o.metrics.RecordOutcome(serviceName, OutcomePublic)
			return handler(ctx, req)
		}
		ctx, err := authenticateGRPC(ctx, validator, serviceName, o.metrics)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(validator TokenValidator, serviceName string, opts ...GRPCOption) grpc.StreamServerInterceptor {
	o := newGRPCOptions(opts)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if o.public[info.FullMethod] {
			o.metrics.RecordOutcome(serviceName, OutcomePublic)
			return handler(srv, ss)
		}
		ctx, err := authenticateGRPC(ss.Context(), validator, serviceName, o.metrics)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor forwards the caller's bearer token from the
// context so the called service can re-validate it. Calls without a
// token in the context are sent unchanged.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(forwardTokenGRPC(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming counterpart of
// [UnaryClientInterceptor].
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(forwardTokenGRPC(ctx), desc, cc, method, opts...)
	}
}

func authenticateGRPC(ctx context.Context, validator TokenValidator, serviceName string, metrics *Metrics) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	if values := md.Get(HeaderAuthorization); len(values) > 0 {
		token = ExtractBearerToken(values[0])
	}
	if token == "" {
		metrics.RecordOutcome(serviceName, OutcomeMissing)
		return ctx, status.Error(codes.Unauthenticated, MessageMissingHeader)
	}

	claims, err := validator.Validate(ctx, token)
	var identity Identity
	if err == nil {
		identity, err = NewIdentity(claims)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.RecordOutcome(serviceName, OutcomeCancelled)
		return ctx, status.FromContextError(ctxErr).Err()
	}
	if err != nil {
		_, message, outcome := rejection(err)
		metrics.RecordOutcome(serviceName, outcome)
		slog.WarnContext(ctx, "auth: gRPC call rejected",
			"service", serviceName,
			"code", sserr.GetCode(err),
			"error", err,
		)
		return ctx, status.Error(codes.Unauthenticated, message)
	}

	metrics.RecordOutcome(serviceName, OutcomeAuthenticated)
	if _, exists := IdentityFromContext(ctx); exists {
		return ctx, nil
	}
	return ContextWithIdentity(ctx, identity, claims, token), nil
}

func forwardTokenGRPC(ctx context.Context) context.Context {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return ctx
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok && len(md.Get(HeaderAuthorization)) > 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, HeaderAuthorization, bearerPrefix+token)
}

// wrappedServerStream overrides Context so handlers see the identity.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
