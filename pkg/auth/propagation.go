package auth

import (
	"net/http"
	"strings"
)

// Header names used between the gateway and downstream services. The
// identity headers are informational: downstream services derive identity
// from the forwarded Authorization header, never from these values.
const (
	// HeaderAuthorization carries the bearer token. Lowercase so the same
	// constant works as a gRPC metadata key.
	HeaderAuthorization = "authorization"

	// HeaderUserID carries the authenticated user id.
	HeaderUserID = "X-User-ID"

	// HeaderUsername carries the authenticated username.
	HeaderUsername = "X-Username"

	// HeaderRoles carries the canonical role authority, e.g. "ROLE_ADMIN".
	HeaderRoles = "X-Roles"

	// HeaderRequestID correlates one request across the gateway and the
	// target service.
	HeaderRequestID = "X-Request-ID"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively. It returns "" when the
// header is empty or uses another scheme.
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return authHeader[len(bearerPrefix):]
}

// StripIdentityHeaders removes identity headers a client may have forged.
func StripIdentityHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUsername)
	h.Del(HeaderRoles)
}

// SetIdentityHeaders writes the identity headers for id.
func SetIdentityHeaders(h http.Header, id Identity) {
	h.Set(HeaderUserID, id.UserID())
	h.Set(HeaderUsername, id.Username())
	h.Set(HeaderRoles, id.Authority())
}

// PropagatingRoundTripper forwards the caller's credentials on outgoing
// requests. It always strips client-supplied identity headers. When the
// request context carries an identity it sets the identity headers, and
// when the outgoing request has no Authorization header it adds the bearer
// token from the context so the receiving service can re-validate it.
//
// Example:
//
//	client := &http.Client{
//	    Transport: auth.NewPropagatingRoundTripper(http.DefaultTransport),
//	}
type PropagatingRoundTripper struct {
	wrapped http.RoundTripper
}

// NewPropagatingRoundTripper wraps transport, or [http.DefaultTransport]
// when nil.
func NewPropagatingRoundTripper(transport http.RoundTripper) *PropagatingRoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &PropagatingRoundTripper{wrapped: transport}
}

// RoundTrip implements [http.RoundTripper]. The original request is not
// modified.
func (t *PropagatingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	StripIdentityHeaders(clone.Header)

	if identity, ok := IdentityFromContext(r.Context()); ok {
		SetIdentityHeaders(clone.Header, identity)
	}
	if clone.Header.Get(HeaderAuthorization) == "" {
		if token, ok := TokenFromContext(r.Context()); ok {
			clone.Header.Set(HeaderAuthorization, bearerPrefix+token)
		}
	}
	return t.wrapped.RoundTrip(clone)
}
