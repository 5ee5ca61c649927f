package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// serviceName labels the gateway in auth logs and metrics.
const serviceName = "gateway"

// Client-facing messages of the gateway.
const (
	MessageNoRoute             = "No route found"
	MessageUpstreamUnavailable = "Upstream service unavailable"
)

// errUpstream classifies proxy failures.
var errUpstream = sserr.New(sserr.CodeUnavailableUpstream, "gateway: upstream request failed")

// Option configures a [Gateway].
type Option func(*options)

type options struct {
	transport   http.RoundTripper
	self        http.Handler
	metrics     *Metrics
	authMetrics *auth.Metrics
	logger      *slog.Logger
}

// WithTransport sets the transport used to reach targets. Defaults to
// [NewTransport] with [DefaultUpstreamTimeout]. It is always wrapped in an
// [auth.PropagatingRoundTripper].
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithSelfHandler serves rules whose service is [ServiceSelf], usually a
// handler from [NewSelfHandler]. Without it such rules answer 404.
func WithSelfHandler(h http.Handler) Option {
	return func(o *options) { o.self = h }
}

// WithMetrics records per-route request counts and latency.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAuthMetrics records authentication outcomes of protected routes.
func WithAuthMetrics(m *auth.Metrics) Option {
	return func(o *options) { o.authMetrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewTransport returns a clone of http.DefaultTransport that waits at
// most timeout for response headers.
func NewTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = timeout
	return t
}

// Gateway routes requests through the route table. It is an
// [http.Handler] and safe for concurrent use.
//
// Example:
//
//	gw, err := gateway.New(gateway.DefaultTable(), targets, validator,
//	    gateway.WithSelfHandler(gateway.NewSelfHandler(table, registry)),
//	)
//	if err != nil {
//	    return err
//	}
//	srv := &http.Server{Addr: ":8080", Handler: gw}
type Gateway struct {
	table    *Table
	handlers []http.Handler
	metrics  *Metrics
	logger   *slog.Logger
}

// New builds a gateway over table. Every service the table routes to must
// have a target; validator authenticates protected routes.
func New(table *Table, targets Targets, validator auth.TokenValidator, opts ...Option) (*Gateway, error) {
	if table == nil {
		return nil, sserr.New(sserr.CodeValidation, "gateway: route table is required")
	}
	if validator == nil {
		return nil, sserr.New(sserr.CodeValidation, "gateway: token validator is required")
	}
	if err := table.Validate(targets); err != nil {
		return nil, err
	}
	urls, err := targets.Parse()
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.transport == nil {
		o.transport = NewTransport(DefaultUpstreamTimeout)
	}
	if o.self == nil {
		o.self = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			auth.WriteJSONError(w, http.StatusNotFound, "Not found")
		})
	}

	g := &Gateway{table: table, metrics: o.metrics, logger: o.logger}

	transport := auth.NewPropagatingRoundTripper(o.transport)
	proxies := make(map[string]http.Handler)
	for _, svc := range table.Services() {
		proxies[svc] = g.newProxy(svc, urls[svc], transport)
	}

	// The gateway's filter protects whatever the table says is protected,
	// so it runs without the service-level public path allow-list.
	authenticate := auth.HTTPMiddleware(validator, serviceName,
		auth.WithPublicPaths(),
		auth.WithMetrics(o.authMetrics),
		auth.WithLogger(o.logger),
	)

	for _, r := range table.rules {
		h := o.self
		if r.Service != ServiceSelf {
			h = proxies[r.Service]
		}
		h = rewriteHandler(r, h)
		if r.MinRole != "" {
			h = auth.RequireRole(r.MinRole)(h)
		}
		if r.RequiresAuth {
			h = authenticate(h)
		}
		g.handlers = append(g.handlers, h)
	}
	return g, nil
}

// ServeHTTP implements [http.Handler].
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	requestID := r.Header.Get(auth.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(auth.HeaderRequestID, requestID)

	r = r.Clone(r.Context())
	r.URL.Path = CleanPath(r.URL.Path)
	r.URL.RawPath = ""
	r.Header.Set(auth.HeaderRequestID, requestID)

	rec := &statusRecorder{ResponseWriter: w}
	i := g.table.index(r.URL.Path)
	if i < 0 {
		g.logger.DebugContext(r.Context(), "gateway: no route",
			"path", r.URL.Path,
			"request_id", requestID,
		)
		auth.WriteJSONError(rec, ErrNoRoute.HTTPStatus(), MessageNoRoute)
		g.metrics.observe(routeUnmatched, rec.code(), time.Since(started))
		return
	}

	rule := g.table.rules[i]
	g.handlers[i].ServeHTTP(rec, r)
	g.metrics.observe(rule.Name, rec.code(), time.Since(started))
	g.logger.DebugContext(r.Context(), "gateway: routed",
		"route", rule.Name,
		"service", rule.Service,
		"path", r.URL.Path,
		"status", rec.code(),
		"request_id", requestID,
	)
}

func (g *Gateway) newProxy(service string, target *url.URL, transport http.RoundTripper) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				g.logger.DebugContext(r.Context(), "gateway: client went away",
					"service", service,
					"path", r.URL.Path,
				)
				return
			}
			g.metrics.upstreamError(service)
			g.logger.WarnContext(r.Context(), errUpstream.Message,
				"service", service,
				"path", r.URL.Path,
				"code", errUpstream.Code,
				"error", err,
			)
			auth.WriteJSONError(w, errUpstream.HTTPStatus(), MessageUpstreamUnavailable)
		},
	}
}

func rewriteHandler(rule Rule, next http.Handler) http.Handler {
	if rule.Rewrite == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withPath(r, rule.RewritePath(r.URL.Path)))
	})
}

// withPath returns a shallow copy of r with a new URL path.
func withPath(r *http.Request, p string) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	u := *r.URL
	u.Path = p
	u.RawPath = ""
	r2.URL = &u
	return r2
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
