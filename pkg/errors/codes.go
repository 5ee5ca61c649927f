package errors

// Code represents a machine-readable error code. Codes follow the pattern
// CATEGORY_XXX where CATEGORY is a short identifier (AUTH, VAL, INT, ...)
// and XXX is a three-digit number. Codes are stable once assigned.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeAuthentication indicates a general authentication failure, such as
	// a missing or non-Bearer Authorization header.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a correctly signed token whose
	// expiration instant has passed.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a token that could not be verified:
	// bad structure, bad signature, or a disallowed algorithm.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationMissing indicates an empty or whitespace-only token.
	CodeAuthenticationMissing Code = "AUTH_004"

	// CodeAuthenticationClaims indicates a verified token whose claims are
	// absent or of the wrong type.
	CodeAuthenticationClaims Code = "AUTH_005"

	// CodeAuthenticationIdentity indicates that a domain identifier
	// (studentId, teacherId) could not be resolved from verified claims.
	CodeAuthenticationIdentity Code = "AUTH_006"

	// CodeAuthorizationRole indicates the identity's role ranks below the
	// role required by the endpoint.
	CodeAuthorizationRole Code = "AUTHZ_002"

	// CodeNotFoundRoute indicates that no gateway rule matches the path.
	CodeNotFoundRoute Code = "NF_004"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeKeyFormat indicates that configured key material is not valid
	// base64. Fatal at startup.
	CodeKeyFormat Code = "INT_004"

	// CodeKeyDecode indicates that decoded key bytes do not form a usable
	// RSA key. Fatal at startup.
	CodeKeyDecode Code = "INT_005"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableUpstream indicates the gateway could not reach the
	// target service.
	CodeUnavailableUpstream Code = "UNAVAIL_002"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
