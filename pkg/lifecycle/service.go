package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope of this package.
const tracerName = "github.com/StricklySoft/academic-platform/pkg/lifecycle"

// StateChangeHandler is called on every state transition with the old and
// new state. Handlers run synchronously under the state mutex; they must
// not call lifecycle methods on the same service. A panicking handler is
// recovered and logged.
type StateChangeHandler func(old, new State)

// Hook runs during a lifecycle transition. A start hook error aborts the
// start and moves the service to [StateFailed].
type Hook func(ctx context.Context) error

// Server is a network server a [Service] can run. *http.Server satisfies
// it directly; wrap a *grpc.Server with [GRPCServer].
type Server interface {
	Serve(ln net.Listener) error
	Shutdown(ctx context.Context) error
}

// endpoint is one server of a service and where it listens.
type endpoint struct {
	name   string
	addr   string
	server Server
	ln     net.Listener
}

// Info is a point-in-time snapshot of a service, safe to serialize.
type Info struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	State     State             `json:"state"`
	Addrs     map[string]string `json:"addrs,omitempty"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	Uptime    time.Duration     `json:"uptime,omitempty"`
}

// Service runs a set of servers through the lifecycle state machine.
// Build one with [NewServiceBuilder].
//
// Example:
//
//	svc, err := lifecycle.NewServiceBuilder("assessment-service", version).
//	    WithServer("http", cfg.Addr, &http.Server{Handler: handler}).
//	    WithOnStart(func(ctx context.Context) error {
//	        _, err := keys.PublicKey() // fail fast on bad key material
//	        return err
//	    }).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx)
type Service struct {
	// Immutable after Build.
	name            string
	version         string
	shutdownTimeout time.Duration
	tracer          trace.Tracer
	logger          *slog.Logger
	onStart         Hook
	onStop          Hook
	stateHandlers   []StateChangeHandler

	mu        sync.RWMutex
	state     State
	startedAt *time.Time
	endpoints []*endpoint

	// serveErr receives the first unexpected Serve error.
	serveErr chan error
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Addr returns the bound address of the named server, or "" before Start.
// Servers configured with port 0 report the port actually chosen.
func (s *Service) Addr(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.endpoints {
		if e.name == name && e.ln != nil {
			return e.ln.Addr().String()
		}
	}
	return ""
}

// Info returns a snapshot of the service.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	for _, e := range s.endpoints {
		if e.ln == nil {
			continue
		}
		if info.Addrs == nil {
			info.Addrs = make(map[string]string)
		}
		info.Addrs[e.name] = e.ln.Addr().String()
	}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil while the service is running and a
// [sserr.CodeUnavailable] error otherwise.
func (s *Service) Health(_ context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
	}
	return nil
}

// setState validates and applies a transition, then notifies handlers.
func (s *Service) setState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}
	s.state = new

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(new),
					)
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

// Start runs the start hook, opens every listener and begins serving. It
// returns once all servers accept connections. On any failure the opened
// listeners are closed and the service is [StateFailed].
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.finishSpan(span, sserr.Wrap(err, sserr.CodeTimeout,
			"lifecycle: start canceled before execution"))
	}
	if err := s.setState(StateStarting); err != nil {
		return s.finishSpan(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service",
		"service", s.name,
		"version", s.version,
	)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed",
				"service", s.name,
				"error", err,
			)
			_ = s.setState(StateFailed)
			return s.finishSpan(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.listen(); err != nil {
		s.logger.ErrorContext(ctx, "lifecycle: listen failed",
			"service", s.name,
			"error", err,
		)
		_ = s.setState(StateFailed)
		return s.finishSpan(span, err)
	}

	s.mu.RLock()
	endpoints := append([]*endpoint(nil), s.endpoints...)
	s.mu.RUnlock()
	for _, e := range endpoints {
		go s.serve(e)
	}

	if err := s.setState(StateRunning); err != nil {
		return s.finishSpan(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	attrs := []any{"service", s.name}
	for _, e := range endpoints {
		attrs = append(attrs, e.name, e.ln.Addr().String())
	}
	s.logger.InfoContext(ctx, "lifecycle: service started", attrs...)
	return s.finishSpan(span, nil)
}

func (s *Service) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.endpoints {
		if e.ln != nil {
			continue
		}
		ln, err := net.Listen("tcp", e.addr)
		if err != nil {
			for _, opened := range s.endpoints[:i] {
				_ = opened.ln.Close()
				opened.ln = nil
			}
			return sserr.Wrapf(err, sserr.CodeUnavailable,
				"lifecycle: failed to listen on %s for %s", e.addr, e.name)
		}
		e.ln = ln
	}
	return nil
}

func (s *Service) serve(e *endpoint) {
	err := e.server.Serve(e.ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	s.logger.Error("lifecycle: server stopped unexpectedly",
		"service", s.name,
		"server", e.name,
		"error", err,
	)
	select {
	case s.serveErr <- sserr.Wrapf(err, sserr.CodeUnavailable, "lifecycle: %s server failed", e.name):
	default:
	}
}

// Stop shuts every server down gracefully within ctx, then runs the stop
// hook. Stop on a terminal service is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		return s.finishSpan(span, nil)
	}
	if err := s.setState(StateStopping); err != nil {
		return s.finishSpan(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	err := s.shutdown(ctx)
	if s.onStop != nil {
		if hookErr := s.onStop(ctx); hookErr != nil && err == nil {
			err = sserr.Wrap(hookErr, sserr.CodeInternal, "lifecycle: stop hook failed")
		}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle: shutdown failed",
			"service", s.name,
			"error", err,
		)
		_ = s.setState(StateFailed)
		return s.finishSpan(span, err)
	}

	if err := s.setState(StateStopped); err != nil {
		return s.finishSpan(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	return s.finishSpan(span, nil)
}

// shutdown stops all servers concurrently and returns the first error.
func (s *Service) shutdown(ctx context.Context) error {
	s.mu.RLock()
	endpoints := append([]*endpoint(nil), s.endpoints...)
	s.mu.RUnlock()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for _, e := range endpoints {
		if e.ln == nil {
			continue
		}
		wg.Add(1)
		go func(e *endpoint) {
			defer wg.Done()
			if err := e.server.Shutdown(ctx); err != nil {
				once.Do(func() {
					first = sserr.Wrapf(err, sserr.CodeTimeout,
						"lifecycle: %s server did not shut down cleanly", e.name)
				})
			}
		}(e)
	}
	wg.Wait()
	return first
}

// Run starts the service and blocks until ctx is done or a server fails,
// then stops it within the configured shutdown timeout. It returns nil
// after a clean shutdown triggered by ctx.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.serveErr:
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if serveErr != nil {
		_ = s.shutdown(stopCtx)
		_ = s.setState(StateFailed)
		return serveErr
	}
	return s.Stop(stopCtx)
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func (s *Service) finishSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
