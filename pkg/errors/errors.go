// Package errors provides the structured error type shared by every service
// of the academic platform: the API gateway, the user/role service and the
// assessment-feedback service.
//
// # Error Categories
//
//   - Validation errors: invalid configuration or request input
//   - Authentication errors: missing, malformed, forged or expired tokens
//   - Authorization errors: a valid identity whose role ranks too low
//   - NotFound errors: no gateway route or resource for a request
//   - Internal errors: key material and configuration failures at startup
//   - Unavailable errors: a service that is not (yet) serving traffic
//
// # Error Codes
//
// Each error carries a machine-readable code such as "AUTH_002". Codes follow
// the pattern CATEGORY_XXX and map onto an HTTP status through
// [Error.HTTPStatus]. Authentication codes always map to 401: a bad token is
// a client-side condition and is never reported as a server fault.
//
// # Usage
//
//	err := errors.New(errors.CodeAuthenticationExpired, "auth: token has expired")
//
//	if errors.HasCode(err, errors.CodeAuthenticationExpired) {
//	    // ask the client to log in again
//	}
package errors
