package auth

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// ---------------------------------------------------------------------------
// Mock ServerStream for stream interceptor testing
// ---------------------------------------------------------------------------

// mockServerStream implements grpc.ServerStream for testing.
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}

func incomingBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(HeaderAuthorization, "Bearer "+token))
}

// ---------------------------------------------------------------------------
// UnaryServerInterceptor
// ---------------------------------------------------------------------------

func TestUnaryServerInterceptor_ValidToken(t *testing.T) {
	t.Parallel()
	interceptor := UnaryServerInterceptor(&mockValidator{claims: newTestClaims()}, "assessment-service")

	var handlerCtx context.Context
	handler := func(ctx context.Context, req any) (any, error) {
		handlerCtx = ctx
		return "response", nil
	}

	resp, err := interceptor(incomingBearer("valid-token"), "request",
		&grpc.UnaryServerInfo{FullMethod: "/academic.Assessments/Get"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "response", resp)

	identity, ok := IdentityFromContext(handlerCtx)
	require.True(t, ok, "identity not found in handler context")
	assert.Equal(t, "42", identity.UserID())
	assert.Equal(t, RoleTeacher, identity.Role())
	token, _ := TokenFromContext(handlerCtx)
	assert.Equal(t, "valid-token", token)
}

func TestUnaryServerInterceptor_Rejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		ctx       context.Context
		validator *mockValidator
		message   string
	}{
		{
			name:      "no metadata",
			ctx:       context.Background(),
			validator: &mockValidator{claims: newTestClaims()},
			message:   MessageMissingHeader,
		},
		{
			name: "wrong scheme",
			ctx: metadata.NewIncomingContext(context.Background(),
				metadata.Pairs(HeaderAuthorization, "Basic abc")),
			validator: &mockValidator{claims: newTestClaims()},
			message:   MessageMissingHeader,
		},
		{
			name:      "expired",
			ctx:       incomingBearer("old"),
			validator: &mockValidator{err: sserr.New(sserr.CodeAuthenticationExpired, "auth: token has expired")},
			message:   MessageExpiredToken,
		},
		{
			name:      "invalid",
			ctx:       incomingBearer("forged"),
			validator: &mockValidator{err: sserr.New(sserr.CodeAuthenticationInvalid, "auth: token signature is invalid")},
			message:   "Invalid JWT token: token signature is invalid",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			interceptor := UnaryServerInterceptor(tt.validator, "svc")
			handler := func(ctx context.Context, req any) (any, error) {
				t.Error("handler should not be called when authentication fails")
				return nil, nil
			}

			_, err := interceptor(tt.ctx, "request", &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}, handler)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.Unauthenticated, st.Code())
			assert.Equal(t, tt.message, st.Message())
		})
	}
}

func TestUnaryServerInterceptor_PublicMethod(t *testing.T) {
	t.Parallel()
	validator := &mockValidator{err: sserr.New(sserr.CodeAuthenticationInvalid, "auth: nope")}
	interceptor := UnaryServerInterceptor(validator, "svc",
		WithPublicMethods("/grpc.health.v1.Health/Check"))

	called := false
	handler := func(ctx context.Context, req any) (any, error) {
		called = true
		_, ok := IdentityFromContext(ctx)
		assert.False(t, ok)
		return nil, nil
	}

	_, err := interceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Zero(t, validator.calls)
}

func TestUnaryServerInterceptor_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(incomingBearer("tok"))
	defer cancel()
	interceptor := UnaryServerInterceptor(&mockValidator{claims: newTestClaims(), onValidate: cancel}, "svc")

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"},
		func(context.Context, any) (any, error) {
			t.Error("handler should not be called after cancellation")
			return nil, nil
		})
	assert.Equal(t, codes.Canceled, status.Code(err))
}

func TestUnaryServerInterceptor_Metrics(t *testing.T) {
	t.Parallel()
	metrics := NewMetrics(prometheus.NewRegistry())
	interceptor := UnaryServerInterceptor(&mockValidator{claims: newTestClaims()}, "svc",
		WithGRPCMetrics(metrics), WithPublicMethods("/grpc.health.v1.Health/Check"))
	handler := func(context.Context, any) (any, error) { return nil, nil }

	_, _ = interceptor(incomingBearer("tok"), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}, handler)
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}, handler)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("svc", OutcomeAuthenticated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("svc", OutcomePublic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("svc", OutcomeMissing)))
}

// ---------------------------------------------------------------------------
// StreamServerInterceptor
// ---------------------------------------------------------------------------

func TestStreamServerInterceptor_ValidToken(t *testing.T) {
	t.Parallel()
	interceptor := StreamServerInterceptor(&mockValidator{claims: newTestClaims()}, "svc")

	var streamCtx context.Context
	handler := func(srv any, stream grpc.ServerStream) error {
		streamCtx = stream.Context()
		return nil
	}

	err := interceptor(nil, &mockServerStream{ctx: incomingBearer("tok")},
		&grpc.StreamServerInfo{FullMethod: "/x.Y/Watch"}, handler)
	require.NoError(t, err)

	identity, ok := IdentityFromContext(streamCtx)
	require.True(t, ok)
	assert.Equal(t, "mrossi", identity.Username())
}

func TestStreamServerInterceptor_Rejects(t *testing.T) {
	t.Parallel()
	interceptor := StreamServerInterceptor(&mockValidator{claims: newTestClaims()}, "svc")
	handler := func(any, grpc.ServerStream) error {
		t.Error("handler should not be called without a token")
		return nil
	}

	err := interceptor(nil, &mockServerStream{ctx: context.Background()},
		&grpc.StreamServerInfo{FullMethod: "/x.Y/Watch"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestStreamServerInterceptor_PublicMethod(t *testing.T) {
	t.Parallel()
	interceptor := StreamServerInterceptor(&mockValidator{}, "svc",
		WithPublicMethods("/grpc.health.v1.Health/Watch"))

	called := false
	err := interceptor(nil, &mockServerStream{ctx: context.Background()},
		&grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"},
		func(any, grpc.ServerStream) error { called = true; return nil })
	require.NoError(t, err)
	assert.True(t, called)
}

// ---------------------------------------------------------------------------
// Client interceptors
// ---------------------------------------------------------------------------

func TestUnaryClientInterceptor_ForwardsToken(t *testing.T) {
	t.Parallel()
	identity := Identity{userID: "42", username: "mrossi", role: RoleTeacher}
	ctx := ContextWithIdentity(context.Background(), identity, nil, "caller-token")

	var sent metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		sent, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	require.NoError(t, UnaryClientInterceptor()(ctx, "/x.Y/Z", nil, nil, nil, invoker))
	assert.Equal(t, []string{"Bearer caller-token"}, sent.Get(HeaderAuthorization))
}

func TestUnaryClientInterceptor_KeepsExplicitToken(t *testing.T) {
	t.Parallel()
	ctx := ContextWithIdentity(context.Background(), Identity{}, nil, "caller-token")
	ctx = metadata.AppendToOutgoingContext(ctx, HeaderAuthorization, "Bearer service-token")

	var sent metadata.MD
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		sent, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	require.NoError(t, UnaryClientInterceptor()(ctx, "/x.Y/Z", nil, nil, nil, invoker))
	assert.Equal(t, []string{"Bearer service-token"}, sent.Get(HeaderAuthorization))
}

func TestStreamClientInterceptor_NoTokenUnchanged(t *testing.T) {
	t.Parallel()
	var sent metadata.MD
	var hadMD bool
	streamer := func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		sent, hadMD = metadata.FromOutgoingContext(ctx)
		return nil, nil
	}

	_, err := StreamClientInterceptor()(context.Background(), &grpc.StreamDesc{}, nil, "/x.Y/Watch", streamer)
	require.NoError(t, err)
	assert.False(t, hadMD)
	assert.Empty(t, sent.Get(HeaderAuthorization))
}
