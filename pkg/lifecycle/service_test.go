package lifecycle

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/StricklySoft/academic-platform/internal/testutil"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// ===========================================================================
// Test Helpers
// ===========================================================================

func okServer() *http.Server {
	return &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		ReadHeaderTimeout: time.Second,
	}
}

// mustBuildService builds a service with one loopback HTTP server.
func mustBuildService(t *testing.T, configure ...func(*ServiceBuilder)) *Service {
	t.Helper()
	b := NewServiceBuilder("test-service", "1.0.0").WithServer("http", "127.0.0.1:0", okServer())
	for _, c := range configure {
		c(b)
	}
	svc, err := b.Build()
	require.NoError(t, err)
	return svc
}

// failingServer stops serving immediately with an error.
type failingServer struct{}

func (failingServer) Serve(ln net.Listener) error {
	_ = ln.Close()
	return errors.New("accept: connection reset")
}

func (failingServer) Shutdown(context.Context) error { return nil }

// stateRecorder collects transitions.
type stateRecorder struct {
	mu          sync.Mutex
	transitions []State
}

func (r *stateRecorder) handler(_, new State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, new)
}

func (r *stateRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.transitions...)
}

// ===========================================================================
// Build Tests
// ===========================================================================

func TestServiceBuilder_Build_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		builder *ServiceBuilder
	}{
		{"empty name", NewServiceBuilder("", "1").WithServer("http", ":0", okServer())},
		{"empty version", NewServiceBuilder("svc", "").WithServer("http", ":0", okServer())},
		{"no servers", NewServiceBuilder("svc", "1")},
		{"nil server", NewServiceBuilder("svc", "1").WithServer("http", ":0", nil)},
		{"duplicate names", NewServiceBuilder("svc", "1").
			WithServer("http", ":0", okServer()).
			WithServer("http", ":0", okServer())},
		{"negative timeout", NewServiceBuilder("svc", "1").
			WithServer("http", ":0", okServer()).
			WithShutdownTimeout(-time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.builder.Build()
			testutil.AssertErrorCode(t, err, sserr.CodeValidation)
		})
	}
}

func TestServiceBuilder_Build_Defaults(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t)
	assert.Equal(t, "test-service", svc.Name())
	assert.Equal(t, "1.0.0", svc.Version())
	assert.Equal(t, StateUnknown, svc.State())
	assert.Equal(t, DefaultShutdownTimeout, svc.shutdownTimeout)
	assert.Empty(t, svc.Addr("http"))
}

// ===========================================================================
// Start / Stop Tests
// ===========================================================================

func TestService_StartServeStop(t *testing.T) {
	t.Parallel()
	rec := &stateRecorder{}
	hookRan := false
	svc := mustBuildService(t, func(b *ServiceBuilder) {
		b.OnStateChange(rec.handler).
			WithOnStart(func(context.Context) error { hookRan = true; return nil })
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, hookRan)
	assert.Equal(t, StateRunning, svc.State())
	assert.NoError(t, svc.Health(context.Background()))

	addr := svc.Addr("http")
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	info := svc.Info()
	assert.Equal(t, StateRunning, info.State)
	assert.Equal(t, addr, info.Addrs["http"])
	require.NotNil(t, info.StartedAt)

	require.NoError(t, svc.Stop(context.Background()))
	assert.Equal(t, StateStopped, svc.State())
	assert.Nil(t, svc.Info().StartedAt)
	testutil.AssertErrorCode(t, svc.Health(context.Background()), sserr.CodeUnavailable)

	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, rec.states())

	_, err = http.Get("http://" + addr + "/")
	assert.Error(t, err, "listener is closed after Stop")
}

func TestService_StartHookFailure(t *testing.T) {
	t.Parallel()
	keyErr := sserr.New(sserr.CodeKeyDecode, "auth: public key is not a valid X.509 key")
	svc := mustBuildService(t, func(b *ServiceBuilder) {
		b.WithOnStart(func(context.Context) error { return keyErr })
	})

	err := svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.ErrorIs(t, err, keyErr)
	assert.Equal(t, StateFailed, svc.State())
	assert.Empty(t, svc.Addr("http"), "no listener opens after a failed start hook")
}

func TestService_ListenFailure(t *testing.T) {
	t.Parallel()
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	svc, err := NewServiceBuilder("svc", "1").
		WithServer("first", "127.0.0.1:0", okServer()).
		WithServer("second", taken.Addr().String(), okServer()).
		Build()
	require.NoError(t, err)

	err = svc.Start(context.Background())
	testutil.AssertErrorCode(t, err, sserr.CodeUnavailable)
	assert.Equal(t, StateFailed, svc.State())
	assert.Empty(t, svc.Addr("first"), "listeners opened before the failure are closed")
}

func TestService_StartCanceledContext(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Start(ctx)
	testutil.AssertErrorCode(t, err, sserr.CodeTimeout)
	assert.Equal(t, StateUnknown, svc.State())
}

func TestService_StartTwice(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t)
	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(context.Background()) }()

	testutil.AssertErrorCode(t, svc.Start(context.Background()), sserr.CodeConflict)
}

func TestService_StopTerminalIsNoop(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t, func(b *ServiceBuilder) {
		b.WithOnStart(func(context.Context) error { return errors.New("no key") })
	})
	require.Error(t, svc.Start(context.Background()))

	assert.NoError(t, svc.Stop(context.Background()))
	assert.Equal(t, StateFailed, svc.State())
}

func TestService_StopHookError(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t, func(b *ServiceBuilder) {
		b.WithOnStop(func(context.Context) error { return errors.New("flush failed") })
	})
	require.NoError(t, svc.Start(context.Background()))

	err := svc.Stop(context.Background())
	testutil.AssertErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, StateFailed, svc.State())
}

func TestService_PanickingStateHandler(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t, func(b *ServiceBuilder) {
		b.OnStateChange(func(_, _ State) { panic("observer bug") })
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
	require.NoError(t, svc.Stop(context.Background()))
}

// ===========================================================================
// Run Tests
// ===========================================================================

func TestService_Run_StopsOnCancel(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t, func(b *ServiceBuilder) { b.WithShutdownTimeout(5 * time.Second) })
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.State() == StateRunning }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, StateStopped, svc.State())
}

func TestService_Run_ServerFailure(t *testing.T) {
	t.Parallel()
	svc, err := NewServiceBuilder("svc", "1").
		WithServer("broken", "127.0.0.1:0", failingServer{}).
		Build()
	require.NoError(t, err)

	err = svc.Run(context.Background())
	testutil.AssertErrorCode(t, err, sserr.CodeUnavailable)
	assert.Equal(t, StateFailed, svc.State())
}

func TestService_Run_StartFailure(t *testing.T) {
	t.Parallel()
	svc := mustBuildService(t, func(b *ServiceBuilder) {
		b.WithOnStart(func(context.Context) error { return errors.New("bad key") })
	})
	assert.Error(t, svc.Run(context.Background()))
	assert.Equal(t, StateFailed, svc.State())
}

// ===========================================================================
// gRPC Tests
// ===========================================================================

func TestService_GRPCServer(t *testing.T) {
	t.Parallel()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, health.NewServer())

	svc, err := NewServiceBuilder("svc", "1").
		WithServer("grpc", "127.0.0.1:0", GRPCServer(srv)).
		Build()
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	assert.NotEmpty(t, svc.Addr("grpc"))
	require.NoError(t, svc.Stop(context.Background()))
	assert.Equal(t, StateStopped, svc.State())
}

// ===========================================================================
// Tracing Tests
// ===========================================================================

func TestService_Spans(t *testing.T) {
	t.Parallel()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	svc := mustBuildService(t)
	svc.tracer = tp.Tracer(tracerName)

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "lifecycle.Start", spans[0].Name())
	assert.Equal(t, "lifecycle.Stop", spans[1].Name())
}
