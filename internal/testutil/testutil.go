// Package testutil provides shared test helpers for the academic platform.
//
// All helpers accept [testing.TB] and call t.Helper(). Helpers that halt the
// test use [require]; helpers that only record a failure use [assert].
//
// testutil must not import the platform's pkg/auth, whose own tests depend
// on it. Token helpers therefore work with golang-jwt directly.
package testutil

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// RequireErrorCode halts the test unless err is an *sserr.Error carrying
// code.
//
// Example:
//
//	_, err := validator.Validate(ctx, "")
//	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationMissing)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode is the non-halting form of [RequireErrorCode], for
// table-driven tests.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// DecodeErrorBody decodes a {"error": "..."} response body and returns the
// message.
func DecodeErrorBody(t testing.TB, body io.Reader) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(body).Decode(&payload), "response body is not JSON")
	msg, ok := payload["error"]
	require.True(t, ok, "response body has no \"error\" field: %v", payload)
	return msg
}

// TempFile creates a file with the given name and content inside
// t.TempDir() with mode 0600 and returns its path.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write temp file %s", path)
	return path
}

// UnsetEnv unsets key for the duration of the test. t.Setenv records the
// original value for restoration, so like t.Setenv it must not be used in
// parallel tests.
func UnsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
