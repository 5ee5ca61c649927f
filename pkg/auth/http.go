package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Client-facing messages of the authentication filter.
const (
	MessageMissingHeader = "Missing or invalid-format Authorization header"
	MessageInvalidToken  = "Invalid JWT token: "
	MessageExpiredToken  = "Token not valid or expired"
)

// ErrorBody is the JSON body of every error response written by the
// platform's HTTP layers.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSONError writes {"error": message} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: message})
}

// MiddlewareOption configures [HTTPMiddleware].
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	public  PublicPaths
	metrics *Metrics
	logger  *slog.Logger
}

// WithPublicPaths replaces [DefaultPublicPaths]. Calling it with no
// prefixes makes every path protected, which is what the gateway wants:
// its route table decides which requests are authenticated.
func WithPublicPaths(prefixes ...string) MiddlewareOption {
	return func(o *middlewareOptions) { o.public = NewPublicPaths(prefixes...) }
}

// WithMetrics records outcomes and validation latency.
func WithMetrics(m *Metrics) MiddlewareOption {
	return func(o *middlewareOptions) { o.metrics = m }
}

// WithLogger sets the logger for rejected requests. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) { o.logger = l }
}

// HTTPMiddleware returns the per-service authentication filter.
//
// For each request it:
//  1. passes public paths through unauthenticated
//  2. requires "Authorization: Bearer <token>", answering 401 otherwise
//  3. validates the token and builds the [Identity], answering 401 on any
//     failure
//  4. attaches identity, claims and token to the request context and
//     calls next
//
// An identity already present in the context is kept; the token is still
// validated. A request whose context is done by the time validation
// finishes gets no identity and next is not called; it is answered with
// 401.
//
// The serviceName parameter labels logs and metrics.
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("GET /api/v1/assessments/me", handleMe)
//	handler := auth.HTTPMiddleware(validator, "assessment-service")(mux)
func HTTPMiddleware(validator TokenValidator, serviceName string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{public: NewPublicPaths(DefaultPublicPaths...)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.public.IsPublic(r.URL.Path) {
				o.metrics.RecordOutcome(serviceName, OutcomePublic)
				next.ServeHTTP(w, r)
				return
			}

			token := ExtractBearerToken(r.Header.Get(HeaderAuthorization))
			if token == "" {
				o.metrics.RecordOutcome(serviceName, OutcomeMissing)
				WriteJSONError(w, http.StatusUnauthorized, MessageMissingHeader)
				return
			}

			ctx := r.Context()
			started := time.Now()
			claims, err := validator.Validate(ctx, token)
			o.metrics.ObserveValidation(serviceName, time.Since(started))

			var identity Identity
			if err == nil {
				identity, err = NewIdentity(claims)
			}

			if ctx.Err() != nil {
				o.metrics.RecordOutcome(serviceName, OutcomeCancelled)
				o.logger.DebugContext(ctx, "auth: request cancelled during authentication",
					"service", serviceName,
					"path", r.URL.Path,
					"error", ctx.Err(),
				)
				WriteJSONError(w, http.StatusUnauthorized, MessageInvalidToken+detailCancelled)
				return
			}

			if err != nil {
				status, message, outcome := rejection(err)
				o.metrics.RecordOutcome(serviceName, outcome)
				o.logger.WarnContext(ctx, "auth: request rejected",
					"service", serviceName,
					"path", r.URL.Path,
					"code", sserr.GetCode(err),
					"error", err,
				)
				WriteJSONError(w, status, message)
				return
			}

			o.metrics.RecordOutcome(serviceName, OutcomeAuthenticated)
			if _, exists := IdentityFromContext(ctx); !exists {
				ctx = ContextWithIdentity(ctx, identity, claims, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detailCancelled completes [MessageInvalidToken] when the request ended
// before authentication did.
const detailCancelled = "request cancelled before authentication completed"

// rejection maps a validation error to the response. Key material errors
// are configuration faults that startup should have caught; they are
// logged with their code but still answered as an invalid token.
func rejection(err error) (status int, message, outcome string) {
	if sserr.HasCode(err, sserr.CodeAuthenticationExpired) {
		return http.StatusUnauthorized, MessageExpiredToken, OutcomeExpired
	}
	return http.StatusUnauthorized, MessageInvalidToken + clientDetail(err), OutcomeInvalid
}

// clientDetail is the generic, client-safe part of err: its message
// without the package prefix and without any cause.
func clientDetail(err error) string {
	e, ok := sserr.AsError(err)
	if !ok || sserr.IsKeyMaterial(err) {
		return "token validation failed"
	}
	return strings.TrimPrefix(e.Message, "auth: ")
}
