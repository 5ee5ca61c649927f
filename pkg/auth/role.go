package auth

import (
	"log/slog"
	"net/http"
	"strings"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Role is one of the four platform roles. Roles are totally ordered:
//
//	STUDENT < TEACHER < ADMIN < SUPER_ADMIN
//
// The zero value is not a valid role.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleTeacher    Role = "TEACHER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// AuthorityPrefix is the prefix of the canonical role authority tag
// forwarded in X-Roles, e.g. "ROLE_TEACHER".
const AuthorityPrefix = "ROLE_"

// ParseRole converts a role claim or authority tag to a Role. Matching is
// case-insensitive and the "ROLE_" prefix is optional, so "teacher",
// "TEACHER" and "ROLE_TEACHER" all yield [RoleTeacher]. Unknown values fail
// with code [sserr.CodeAuthenticationClaims].
func ParseRole(s string) (Role, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	r := Role(strings.TrimPrefix(upper, AuthorityPrefix))
	if !r.Valid() {
		return "", sserr.Newf(sserr.CodeAuthenticationClaims, "auth: role %q is not recognized", s)
	}
	return r, nil
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r.Level() >= 0
}

// Level returns the ordinal of the role (STUDENT is 0) or -1 for an
// unknown role.
func (r Role) Level() int {
	switch r {
	case RoleStudent:
		return 0
	case RoleTeacher:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether r ranks at or above min. Unknown roles rank
// below everything.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Level() >= min.Level()
}

// Authority returns the canonical "ROLE_"-prefixed tag for r. This is the
// single place the prefix convention is applied.
func (r Role) Authority() string {
	return AuthorityPrefix + string(r)
}

// String returns the bare role name.
func (r Role) String() string {
	return string(r)
}

// UnmarshalText accepts any form [ParseRole] accepts. An empty value
// leaves the role unset.
func (r *Role) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = ""
		return nil
	}
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RequireRole returns middleware that answers 403 unless the request's
// identity ranks at least min. It must run after [HTTPMiddleware]; a
// request without an identity is answered with 401.
//
// Example:
//
//	mux.Handle("GET /api/v1/surveys/admin",
//	    auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(listSurveys)))
func RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteJSONError(w, http.StatusUnauthorized, MessageMissingHeader)
				return
			}
			if err := CheckRole(identity, min); err != nil {
				slog.WarnContext(r.Context(), "auth: insufficient role",
					"identity", identity,
					"path", r.URL.Path,
					"code", err.Code,
					"required", min,
				)
				WriteJSONError(w, err.HTTPStatus(), "Insufficient role: "+min.Authority()+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckRole returns a [sserr.CodeAuthorizationRole] error unless identity
// ranks at least min. The error carries the held and required roles as
// details.
func CheckRole(identity Identity, min Role) *sserr.Error {
	if identity.Role().AtLeast(min) {
		return nil
	}
	return sserr.Newf(sserr.CodeAuthorizationRole,
		"auth: role %s does not satisfy %s", identity.Role(), min).
		WithDetail("role", identity.Authority()).
		WithDetail("required", min.Authority())
}
