package auth

import (
	"context"
	"crypto/rsa"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/academic-platform/internal/testutil"
	"github.com/StricklySoft/academic-platform/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// ===========================================================================
// Test Helpers
// ===========================================================================

// jwtTestValidator returns a validator trusting key's public half.
func jwtTestValidator(t *testing.T, key *rsa.PrivateKey, mutate ...func(*ValidatorConfig)) *RSAValidator {
	t.Helper()
	cfg := DefaultValidatorConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	v, err := NewRSAValidator(cfg, NewPublicKeyProvider(testutil.EncodePublicKey(t, &key.PublicKey)))
	require.NoError(t, err)
	return v
}

// fixedNow pins the validator clock.
func fixedNow(now time.Time) func(*ValidatorConfig) {
	return func(c *ValidatorConfig) { c.Now = func() time.Time { return now } }
}

// ===========================================================================
// ValidatorConfig Tests
// ===========================================================================

func TestValidatorConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*ValidatorConfig)
		ok     bool
	}{
		{name: "defaults", mutate: func(*ValidatorConfig) {}, ok: true},
		{name: "RS256 only", mutate: func(c *ValidatorConfig) { c.Algorithms = []string{"RS256"} }, ok: true},
		{name: "no algorithms", mutate: func(c *ValidatorConfig) { c.Algorithms = nil }},
		{name: "HMAC algorithm", mutate: func(c *ValidatorConfig) { c.Algorithms = []string{"RS256", "HS256"} }},
		{name: "none algorithm", mutate: func(c *ValidatorConfig) { c.Algorithms = []string{"none"} }},
		{name: "negative skew", mutate: func(c *ValidatorConfig) { c.ClockSkew = -time.Second }},
		{name: "zero max size", mutate: func(c *ValidatorConfig) { c.MaxTokenBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultValidatorConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			testutil.AssertErrorCode(t, err, sserr.CodeValidation)
		})
	}
}

func TestNewRSAValidator_RejectsNilKeySource(t *testing.T) {
	t.Parallel()
	_, err := NewRSAValidator(DefaultValidatorConfig(), nil)
	testutil.RequireErrorCode(t, err, sserr.CodeValidation)
}

// ===========================================================================
// Validate: Success Paths
// ===========================================================================

func TestValidate_TeacherToken(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)
	token := testutil.SignToken(t, key, testutil.Claims(fixtures.TeacherSubject, fixtures.TeacherUsername, fixtures.RoleTeacher))

	assert.True(t, v.IsTokenValid(context.Background(), token))

	claims, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject())
	assert.Equal(t, "mrossi", claims.Username())
	role, ok := claims.Role()
	assert.True(t, ok)
	assert.Equal(t, RoleTeacher, role)

	teacherID, err := claims.TeacherID()
	require.NoError(t, err)
	assert.Equal(t, "42", teacherID)
}

func TestValidate_AcceptsRSAFamily(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)

	for _, method := range []jwt.SigningMethod{jwt.SigningMethodRS256, jwt.SigningMethodRS384, jwt.SigningMethodRS512} {
		t.Run(method.Alg(), func(t *testing.T) {
			t.Parallel()
			token := testutil.SignTokenWith(t, method, key, testutil.Claims("1", "u", "STUDENT"))
			_, err := v.Validate(context.Background(), token)
			assert.NoError(t, err)
		})
	}
}

func TestValidate_NumericClaims(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)
	token := testutil.SignToken(t, key, testutil.Claims("9", "s", "ROLE_STUDENT", "studentId", 123456))

	claims, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	id, err := claims.StudentID()
	require.NoError(t, err)
	assert.Equal(t, "123456", id)
}

func TestValidate_RepeatedAndConcurrent(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)
	good := testutil.SignToken(t, key, testutil.Claims("1", "a", "ADMIN"))
	forged := testutil.SignToken(t, testutil.NewRSAKey(t), testutil.Claims("1", "a", "ADMIN"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := v.Validate(context.Background(), good)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := v.Validate(context.Background(), forged)
			testutil.AssertErrorCode(t, err, sserr.CodeAuthenticationInvalid)
		}()
	}
	wg.Wait()
}

// ===========================================================================
// Validate: Failure Paths
// ===========================================================================

func TestValidate_MissingToken(t *testing.T) {
	t.Parallel()
	v := jwtTestValidator(t, testutil.RSAKey(t))
	for _, token := range []string{"", "   ", "\t\n"} {
		_, err := v.Validate(context.Background(), token)
		testutil.AssertErrorCode(t, err, sserr.CodeAuthenticationMissing)
	}
}

func TestValidate_InvalidSignature(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)
	claims := testutil.Claims("1", "u", "STUDENT")

	valid := testutil.SignToken(t, key, claims)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name  string
		token string
	}{
		{name: "different key", token: testutil.SignToken(t, testutil.NewRSAKey(t), claims)},
		{name: "HMAC with public key bytes", token: testutil.SignTokenWith(t, jwt.SigningMethodHS256, []byte(testutil.EncodePublicKey(t, &key.PublicKey)), claims)},
		{name: "alg none", token: testutil.SignTokenWith(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims)},
		{name: "tampered signature", token: tampered},
		{name: "garbage", token: "not.a.jwt"},
		{name: "two segments", token: "abc.def"},
		{name: "oversized", token: strings.Repeat("a", defaultMaxTokenBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(context.Background(), tt.token)
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
			e, _ := sserr.AsError(err)
			assert.True(t, strings.HasPrefix(e.Message, "auth: "))
			assert.NotContains(t, e.Message, "crypto/rsa", "library diagnostics must stay in the cause")
		})
	}
}

func TestValidate_RestrictedAlgorithms(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key, func(c *ValidatorConfig) { c.Algorithms = []string{"RS256"} })

	token := testutil.SignTokenWith(t, jwt.SigningMethodRS512, key, testutil.Claims("1", "u", "STUDENT"))
	_, err := v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

func TestValidate_MalformedClaims(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{name: "missing exp", claims: testutil.Claims("1", "u", "STUDENT", "exp", nil)},
		{name: "string exp", claims: testutil.Claims("1", "u", "STUDENT", "exp", "tomorrow")},
		{name: "numeric subject", claims: testutil.Claims("1", "u", "STUDENT", "sub", 1)},
		{name: "array username", claims: testutil.Claims("1", "u", "STUDENT", "username", []string{"a"})},
		{name: "numeric role", claims: testutil.Claims("1", "u", "STUDENT", "role", 2)},
		{name: "unknown role", claims: testutil.Claims("1", "u", "JANITOR")},
		{name: "object studentId", claims: testutil.Claims("1", "u", "STUDENT", "studentId", map[string]any{"id": 1})},
		{name: "bool teacherId", claims: testutil.Claims("1", "u", "TEACHER", "teacherId", true)},
		{name: "string nbf", claims: testutil.Claims("1", "u", "STUDENT", "nbf", "now")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(context.Background(), testutil.SignToken(t, key, tt.claims))
			testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationClaims)
		})
	}
}

func TestValidate_Expiry(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		exp  time.Time
		skew time.Duration
		code sserr.Code
	}{
		{name: "one second in the past", exp: now.Add(-time.Second), code: sserr.CodeAuthenticationExpired},
		{name: "exactly now", exp: now, code: sserr.CodeAuthenticationExpired},
		{name: "one second ahead", exp: now.Add(time.Second)},
		{name: "past but within skew", exp: now.Add(-10 * time.Second), skew: 30 * time.Second},
		{name: "past beyond skew", exp: now.Add(-time.Minute), skew: 30 * time.Second, code: sserr.CodeAuthenticationExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := jwtTestValidator(t, key, fixedNow(now), func(c *ValidatorConfig) { c.ClockSkew = tt.skew })
			token := testutil.SignToken(t, key, testutil.Claims("1", "u", "STUDENT", "exp", tt.exp.Unix()))

			_, err := v.Validate(context.Background(), token)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			testutil.RequireErrorCode(t, err, tt.code)
		})
	}
}

func TestValidate_ExpiredButForgedIsInvalid(t *testing.T) {
	t.Parallel()
	v := jwtTestValidator(t, testutil.RSAKey(t))
	claims := testutil.Claims("1", "u", "STUDENT", "exp", time.Now().Add(-time.Hour).Unix())

	_, err := v.Validate(context.Background(), testutil.SignToken(t, testutil.NewRSAKey(t), claims))
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

func TestValidate_NotBefore(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := jwtTestValidator(t, key, fixedNow(now))

	token := testutil.SignToken(t, key, testutil.Claims("1", "u", "STUDENT",
		"nbf", now.Add(time.Minute).Unix(),
		"exp", now.Add(time.Hour).Unix(),
	))
	_, err := v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

func TestValidate_KeyMaterialErrorSurfaces(t *testing.T) {
	t.Parallel()
	v, err := NewRSAValidator(DefaultValidatorConfig(), NewPublicKeyProvider("not base64!"))
	require.NoError(t, err)

	token := testutil.SignToken(t, testutil.RSAKey(t), testutil.Claims("1", "u", "STUDENT"))
	_, err = v.Validate(context.Background(), token)
	testutil.RequireErrorCode(t, err, sserr.CodeKeyFormat)
}

func TestValidate_CancelledContext(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	v := jwtTestValidator(t, key)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, testutil.SignToken(t, key, testutil.Claims("1", "u", "STUDENT")))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// ===========================================================================
// Tracing
// ===========================================================================

func TestValidate_RecordsSpan(t *testing.T) {
	key := testutil.RSAKey(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	v := jwtTestValidator(t, key)
	v.tracer = provider.Tracer(tracerName)

	_, err := v.Validate(context.Background(), "")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "auth.Validate", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1, "error should be recorded as a span event")
}
