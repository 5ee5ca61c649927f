package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// DefaultShutdownTimeout bounds graceful shutdown in [Service.Run].
const DefaultShutdownTimeout = 15 * time.Second

// ServiceBuilder constructs a [Service]. All methods return the builder
// for chaining; [ServiceBuilder.Build] validates the result.
type ServiceBuilder struct {
	name            string
	version         string
	endpoints       []*endpoint
	shutdownTimeout time.Duration
	logger          *slog.Logger
	onStart         Hook
	onStop          Hook
	stateHandlers   []StateChangeHandler
}

// NewServiceBuilder starts building a service with the given identity.
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{name: name, version: version}
}

// WithServer adds a server listening on addr (e.g. ":8080", or
// "127.0.0.1:0" in tests). The name labels logs and [Service.Addr].
func (b *ServiceBuilder) WithServer(name, addr string, srv Server) *ServiceBuilder {
	b.endpoints = append(b.endpoints, &endpoint{name: name, addr: addr, server: srv})
	return b
}

// WithShutdownTimeout bounds graceful shutdown in [Service.Run].
// Defaults to [DefaultShutdownTimeout].
func (b *ServiceBuilder) WithShutdownTimeout(d time.Duration) *ServiceBuilder {
	b.shutdownTimeout = d
	return b
}

// WithLogger sets the logger. Defaults to slog.Default().
func (b *ServiceBuilder) WithLogger(logger *slog.Logger) *ServiceBuilder {
	b.logger = logger
	return b
}

// WithOnStart sets the hook run before any listener opens.
func (b *ServiceBuilder) WithOnStart(hook Hook) *ServiceBuilder {
	b.onStart = hook
	return b
}

// WithOnStop sets the hook run after all servers have shut down.
func (b *ServiceBuilder) WithOnStop(hook Hook) *ServiceBuilder {
	b.onStop = hook
	return b
}

// OnStateChange registers a handler called on every transition, in
// registration order.
func (b *ServiceBuilder) OnStateChange(handler StateChangeHandler) *ServiceBuilder {
	b.stateHandlers = append(b.stateHandlers, handler)
	return b
}

// Build validates the configuration. It returns a [sserr.CodeValidation]
// error if the name or version is empty, no server is configured, two
// servers share a name, or the shutdown timeout is negative.
func (b *ServiceBuilder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service version must not be empty")
	}
	if len(b.endpoints) == 0 {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: at least one server is required")
	}
	if b.shutdownTimeout < 0 {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: shutdown timeout must not be negative")
	}

	seen := make(map[string]bool, len(b.endpoints))
	endpoints := make([]*endpoint, len(b.endpoints))
	for i, e := range b.endpoints {
		if e.name == "" || e.server == nil {
			return nil, sserr.New(sserr.CodeValidation, "lifecycle: server name and server must be set")
		}
		if seen[e.name] {
			return nil, sserr.Newf(sserr.CodeValidation, "lifecycle: duplicate server name %q", e.name)
		}
		seen[e.name] = true
		copied := *e
		endpoints[i] = &copied
	}

	timeout := b.shutdownTimeout
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	handlers := make([]StateChangeHandler, len(b.stateHandlers))
	copy(handlers, b.stateHandlers)

	return &Service{
		name:            b.name,
		version:         b.version,
		shutdownTimeout: timeout,
		tracer:          otel.Tracer(tracerName),
		logger:          logger,
		onStart:         b.onStart,
		onStop:          b.onStop,
		stateHandlers:   handlers,
		state:           StateUnknown,
		endpoints:       endpoints,
		serveErr:        make(chan error, 1),
	}, nil
}
