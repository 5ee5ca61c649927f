// Package auth implements token-based authentication for every service of
// the academic platform: the API gateway and each downstream microservice.
//
// Tokens are RS256-family JWTs minted by the user/role service. Verifiers
// hold only the RSA public key, configured as base64 SPKI DER in
// JWT_PUBLIC_KEY, and never contact the issuer per request.
//
// Defense in depth:
//
// Every service validates every token itself. The gateway forwards the
// caller's Authorization header together with X-User-ID, X-Username and
// X-Roles, but a downstream service never treats those headers as proof of
// identity. It runs its own [HTTPMiddleware] with its own [RSAValidator] and
// its own copy of the public key.
//
// Request flow:
//
//	Authorization: Bearer <jwt>
//	    -> TokenValidator.Validate  -> *ClaimSet
//	    -> NewIdentity              -> Identity
//	    -> ContextWithIdentity      -> handlers read IdentityFromContext
//
// Failures never escalate to a 500. Every per-request failure is answered
// with 401 and a JSON body of the form {"error": "<message>"}.
package auth

import (
	"context"
	"log/slog"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// TokenValidator verifies bearer tokens. Implementations must be safe for
// concurrent use and must not keep per-request state.
type TokenValidator interface {
	// Validate verifies the token and returns its claims. The error is an
	// *sserr.Error with one of the AUTH_xxx codes.
	Validate(ctx context.Context, token string) (*ClaimSet, error)
}

// Identity is the authenticated principal of one request. It is an
// immutable value; copies are independent.
type Identity struct {
	userID   string
	username string
	role     Role
}

// NewIdentity builds the request principal from verified claims. Subject,
// username and role are all required; a missing one fails with
// [sserr.CodeAuthenticationClaims].
func NewIdentity(claims *ClaimSet) (Identity, error) {
	if claims == nil {
		return Identity{}, sserr.New(sserr.CodeAuthenticationClaims, "auth: no claims")
	}
	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, err
	}
	if claims.Username() == "" {
		return Identity{}, sserr.New(sserr.CodeAuthenticationClaims, "auth: username claim is missing")
	}
	role, ok := claims.Role()
	if !ok {
		return Identity{}, sserr.New(sserr.CodeAuthenticationClaims, "auth: role claim is missing")
	}
	return Identity{userID: userID, username: claims.Username(), role: role}, nil
}

// UserID returns the user identifier (the token subject).
func (i Identity) UserID() string { return i.userID }

// Username returns the login name.
func (i Identity) Username() string { return i.username }

// Role returns the bare role.
func (i Identity) Role() Role { return i.role }

// Authority returns the canonical "ROLE_"-prefixed role tag.
func (i Identity) Authority() string { return i.role.Authority() }

// IsZero reports whether i is the zero Identity.
func (i Identity) IsZero() bool { return i == Identity{} }

// LogValue implements [slog.LogValuer].
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", i.userID),
		slog.String("username", i.username),
		slog.String("role", string(i.role)),
	)
}
