package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error by traversing the
// error chain with errors.As.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code of err, or "" if err is nil or not an
// *Error.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
//
// Example:
//
//	if errors.HasCode(err, errors.CodeAuthenticationExpired) {
//	    // ask the client to log in again
//	}
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsKeyMaterial reports whether err is a key format or key decode error.
// Such errors are only produced while materializing keys and must stop a
// service from accepting traffic.
func IsKeyMaterial(err error) bool {
	code := GetCode(err)
	return code == CodeKeyFormat || code == CodeKeyDecode
}
