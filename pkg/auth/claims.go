package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Claim names understood by the platform.
const (
	ClaimSubject   = "sub"
	ClaimUsername  = "username"
	ClaimRole      = "role"
	ClaimExpiresAt = "exp"
	ClaimNotBefore = "nbf"
	ClaimStudentID = "studentId"
	ClaimTeacherID = "teacherId"
	ClaimUserID    = "userId"
)

// ClaimSet holds the typed claims of a token whose signature has been
// verified. A ClaimSet is only produced by a [TokenValidator]; it cannot
// be built from unverified input outside this package.
//
// A ClaimSet is immutable and scoped to the request that carried the
// token.
type ClaimSet struct {
	subject   string
	username  string
	role      Role
	expiresAt time.Time
	studentID string
	teacherID string
	userID    string
	raw       map[string]any
}

// Subject returns the "sub" claim, or "" when absent.
func (c *ClaimSet) Subject() string { return c.subject }

// Username returns the "username" claim, or "" when absent.
func (c *ClaimSet) Username() string { return c.username }

// Role returns the role claim and whether it was present.
func (c *ClaimSet) Role() (Role, bool) { return c.role, c.role != "" }

// ExpiresAt returns the expiration instant.
func (c *ClaimSet) ExpiresAt() time.Time { return c.expiresAt }

// Claim returns any claim by name. Numeric claims are json.Number values.
func (c *ClaimSet) Claim(name string) (any, bool) {
	v, ok := c.raw[name]
	return v, ok
}

// UserID returns the subject, which identifies the user across services.
// It fails with [sserr.CodeAuthenticationClaims] when the subject is
// absent.
func (c *ClaimSet) UserID() (string, error) {
	if c.subject == "" {
		return "", sserr.New(sserr.CodeAuthenticationClaims, "auth: subject claim is missing")
	}
	return c.subject, nil
}

// StudentID resolves the student identifier of the token holder:
//
//  1. the explicit "studentId" claim
//  2. for a STUDENT token, the subject
//  3. for a STUDENT token without subject, the "userId" claim
//
// A TEACHER token that carries an explicit studentId is contradictory and
// is rejected. Any other failure to resolve yields
// [sserr.CodeAuthenticationIdentity].
func (c *ClaimSet) StudentID() (string, error) {
	return c.resolveDomainID(RoleStudent, RoleTeacher, c.studentID, ClaimStudentID)
}

// TeacherID resolves the teacher identifier; see [ClaimSet.StudentID] with
// TEACHER in place of STUDENT.
func (c *ClaimSet) TeacherID() (string, error) {
	return c.resolveDomainID(RoleTeacher, RoleStudent, c.teacherID, ClaimTeacherID)
}

// CheckConsistency reports a token whose domain ids contradict its role:
// a STUDENT token with a teacherId or a TEACHER token with a studentId.
// Such a token fails with [sserr.CodeAuthenticationIdentity] regardless
// of which id the caller asks for.
func (c *ClaimSet) CheckConsistency() error {
	switch {
	case c.role == RoleStudent && c.teacherID != "":
		return conflictError(RoleStudent, ClaimTeacherID)
	case c.role == RoleTeacher && c.studentID != "":
		return conflictError(RoleTeacher, ClaimStudentID)
	}
	return nil
}

func conflictError(role Role, claim string) *sserr.Error {
	return sserr.Newf(sserr.CodeAuthenticationIdentity,
		"auth: %s token carries a conflicting %s claim", role, claim)
}

func (c *ClaimSet) resolveDomainID(owner, opposite Role, explicit, claim string) (string, error) {
	if explicit != "" {
		if c.role == opposite {
			return "", conflictError(opposite, claim)
		}
		return explicit, nil
	}
	if c.role == owner {
		if c.subject != "" {
			return c.subject, nil
		}
		if c.userID != "" {
			return c.userID, nil
		}
	}
	return "", sserr.Newf(sserr.CodeAuthenticationIdentity, "auth: %s not found in expected form", claim)
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// newClaimSet type-checks verified claims. The parser must have been
// configured with jwt.WithJSONNumber so numbers arrive as json.Number.
func newClaimSet(mc jwt.MapClaims) (*ClaimSet, error) {
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, claimTypeError(ClaimExpiresAt, err)
	}
	if exp == nil {
		return nil, sserr.New(sserr.CodeAuthenticationClaims, "auth: exp claim is missing")
	}

	c := &ClaimSet{
		expiresAt: exp.Time,
		raw:       make(map[string]any, len(mc)),
	}
	for k, v := range mc {
		c.raw[k] = v
	}

	if c.subject, err = stringClaim(mc, ClaimSubject); err != nil {
		return nil, err
	}
	if c.username, err = stringClaim(mc, ClaimUsername); err != nil {
		return nil, err
	}

	roleStr, err := stringClaim(mc, ClaimRole)
	if err != nil {
		return nil, err
	}
	if roleStr != "" {
		if c.role, err = ParseRole(roleStr); err != nil {
			return nil, err
		}
	}

	if c.studentID, err = idClaim(mc, ClaimStudentID); err != nil {
		return nil, err
	}
	if c.teacherID, err = idClaim(mc, ClaimTeacherID); err != nil {
		return nil, err
	}
	if c.userID, err = idClaim(mc, ClaimUserID); err != nil {
		return nil, err
	}
	return c, nil
}

// stringClaim returns a string claim, or "" when absent or null.
func stringClaim(mc jwt.MapClaims, name string) (string, error) {
	v, ok := mc[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", claimTypeError(name, nil)
	}
	return s, nil
}

// idClaim returns an identifier claim that may be encoded as a JSON string
// or number. Blank strings count as absent.
func idClaim(mc jwt.MapClaims, name string) (string, error) {
	switch v := mc[name].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", claimTypeError(name, nil)
	}
}

func claimTypeError(name string, cause error) *sserr.Error {
	if cause != nil {
		return sserr.Wrapf(cause, sserr.CodeAuthenticationClaims, "auth: %s claim has the wrong type", name)
	}
	return sserr.Newf(sserr.CodeAuthenticationClaims, "auth: %s claim has the wrong type", name)
}
