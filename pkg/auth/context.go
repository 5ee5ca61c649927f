package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const (
	identityKey contextKey = iota
	claimsKey
	tokenKey
)

// ContextWithIdentity returns a context carrying the authenticated
// identity, the claims it was built from, and the raw bearer token. The
// middleware and interceptors in this package are the only intended
// callers outside tests.
func ContextWithIdentity(ctx context.Context, identity Identity, claims *ClaimSet, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	if claims != nil {
		ctx = context.WithValue(ctx, claimsKey, claims)
	}
	if token != "" {
		ctx = context.WithValue(ctx, tokenKey, token)
	}
	return ctx
}

// IdentityFromContext returns the request's identity, if authenticated.
//
// Example:
//
//	identity, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    return sserr.New(sserr.CodeAuthentication, "no identity in context")
//	}
//	slog.InfoContext(ctx, "request", "identity", identity)
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// MustIdentityFromContext is like [IdentityFromContext] but panics when
// no identity is present. Use only behind [HTTPMiddleware].
func MustIdentityFromContext(ctx context.Context) Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; ensure authentication middleware is configured")
	}
	return identity
}

// ClaimsFromContext returns the verified claims of the request's token.
// Handlers use it to resolve studentId or teacherId.
func ClaimsFromContext(ctx context.Context) (*ClaimSet, bool) {
	claims, ok := ctx.Value(claimsKey).(*ClaimSet)
	return claims, ok
}

// TokenFromContext returns the raw bearer token of the request, for
// forwarding to downstream services that re-validate it.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	return identity.UserID(), ok
}

// UsernameFromContext returns the authenticated username.
func UsernameFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	return identity.Username(), ok
}

// RoleFromContext returns the authenticated role.
func RoleFromContext(ctx context.Context) (Role, bool) {
	identity, ok := IdentityFromContext(ctx)
	return identity.Role(), ok
}

// TraceIDFromContext returns the active OpenTelemetry trace ID as hex.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
