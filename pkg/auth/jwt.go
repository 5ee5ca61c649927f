package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// ---------------------------------------------------------------------------
// ValidatorConfig: configuration for the RSA validator
// ---------------------------------------------------------------------------

// ValidatorConfig holds the tunables of [RSAValidator]. The key itself is
// not part of the config; it comes from a [KeySource].
type ValidatorConfig struct {
	// Algorithms lists the accepted signing algorithms. Only RS256, RS384
	// and RS512 may appear. Defaults to all three.
	Algorithms []string `json:"algorithms" yaml:"algorithms" env:"JWT_ALGORITHMS" envDefault:"RS256,RS384,RS512"`

	// ClockSkew extends the validity of a token past its "exp" claim (and
	// before its "nbf" claim). Must be non-negative. Defaults to zero: a
	// token is expired from the instant its exp claim names.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clockSkew" env:"JWT_CLOCK_SKEW" envDefault:"0s"`

	// MaxTokenBytes bounds the accepted token length. Defaults to 8 KiB.
	MaxTokenBytes int `json:"max_token_bytes" yaml:"maxTokenBytes" env:"JWT_MAX_TOKEN_BYTES" envDefault:"8192"`

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time `json:"-" yaml:"-"`
}

// defaultMaxTokenBytes is the token size limit when none is configured.
const defaultMaxTokenBytes = 8192

var rsaAlgorithms = map[string]bool{"RS256": true, "RS384": true, "RS512": true}

// DefaultValidatorConfig returns the configuration used by every platform
// service unless overridden.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Algorithms:    []string{"RS256", "RS384", "RS512"},
		MaxTokenBytes: defaultMaxTokenBytes,
	}
}

// Validate checks the configuration and returns a *[sserr.Error] with code
// [sserr.CodeValidation] if a field is invalid.
func (c *ValidatorConfig) Validate() error {
	if len(c.Algorithms) == 0 {
		return sserr.New(sserr.CodeValidation, "auth: at least one signing algorithm must be accepted")
	}
	for _, alg := range c.Algorithms {
		if !rsaAlgorithms[alg] {
			return sserr.Newf(sserr.CodeValidation, "auth: signing algorithm %q is not permitted", alg)
		}
	}
	if c.ClockSkew < 0 {
		return sserr.New(sserr.CodeValidation, "auth: clock skew must be non-negative")
	}
	if c.MaxTokenBytes <= 0 {
		return sserr.New(sserr.CodeValidation, "auth: max token size must be greater than zero")
	}
	return nil
}

// ---------------------------------------------------------------------------
// RSAValidator: signature, claim and expiry checks with OTel tracing
// ---------------------------------------------------------------------------

const tracerName = "github.com/StricklySoft/academic-platform/pkg/auth"

// RSAValidator verifies RSA-signed platform tokens. Each service process
// creates its own RSAValidator over its own [KeySource].
//
// RSAValidator holds no mutable state and is safe for concurrent use.
type RSAValidator struct {
	config ValidatorConfig
	keys   KeySource
	parser *jwt.Parser
	tracer trace.Tracer
	now    func() time.Time
}

var _ TokenValidator = (*RSAValidator)(nil)

// NewRSAValidator returns a validator for cfg and keys. The configuration
// is validated; the key is not touched until the first Validate call, so
// callers that need fail-fast startup should call keys.PublicKey first.
func NewRSAValidator(cfg ValidatorConfig, keys KeySource) (*RSAValidator, error) {
	if keys == nil {
		return nil, sserr.New(sserr.CodeValidation, "auth: key source must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &RSAValidator{
		config: cfg,
		keys:   keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods(cfg.Algorithms),
			jwt.WithJSONNumber(),
			// Time-based claims are checked after type checking so that
			// expiry can be reported separately.
			jwt.WithoutClaimsValidation(),
		),
		tracer: otel.Tracer(tracerName),
		now:    now,
	}, nil
}

// Validate verifies token and returns its claims. Checks run in order and
// the first failure wins:
//
//  1. empty or whitespace-only token: [sserr.CodeAuthenticationMissing]
//  2. oversized, malformed, wrongly signed, or signed with an algorithm
//     outside the configured RSA set: [sserr.CodeAuthenticationInvalid]
//  3. missing exp, or a claim of the wrong type, or an unknown role:
//     [sserr.CodeAuthenticationClaims]
//  4. now at or after exp (plus skew): [sserr.CodeAuthenticationExpired]
//
// Error messages are generic; library diagnostics are kept in the Cause.
// A key material failure is returned as-is (INT_004/INT_005).
func (v *RSAValidator) Validate(ctx context.Context, token string) (*ClaimSet, error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.Validate")
	defer span.End()

	claims, err := v.validate(ctx, token)
	if err != nil {
		span.SetAttributes(attribute.String("auth.error_code", sserr.GetCode(err).String()))
		finishSpan(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("auth.subject", claims.Subject()),
		attribute.String("auth.role", string(claims.role)),
	)
	return claims, nil
}

func (v *RSAValidator) validate(ctx context.Context, token string) (*ClaimSet, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, sserr.New(sserr.CodeAuthenticationMissing, "auth: token must not be empty")
	}
	if len(token) > v.config.MaxTokenBytes {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token exceeds maximum size")
	}
	if err := ctx.Err(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthentication, "auth: request cancelled")
	}

	var keyErr error
	parsed, err := v.parser.Parse(token, func(*jwt.Token) (any, error) {
		key, err := v.keys.PublicKey()
		if err != nil {
			keyErr = err
		}
		return key, err
	})
	if keyErr != nil {
		return nil, keyErr
	}
	if err != nil {
		return nil, classifyError(err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, sserr.New(sserr.CodeAuthenticationClaims, "auth: unable to extract claims")
	}
	claims, err := newClaimSet(mc)
	if err != nil {
		return nil, err
	}

	now := v.now()
	if !now.Before(claims.expiresAt.Add(v.config.ClockSkew)) {
		return nil, sserr.New(sserr.CodeAuthenticationExpired, "auth: token has expired")
	}
	nbf, err := mc.GetNotBefore()
	if err != nil {
		return nil, claimTypeError(ClaimNotBefore, err)
	}
	if nbf != nil && now.Add(v.config.ClockSkew).Before(nbf.Time) {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "auth: token is not yet valid")
	}
	return claims, nil
}

// IsTokenValid reports whether token passes [RSAValidator.Validate].
func (v *RSAValidator) IsTokenValid(ctx context.Context, token string) bool {
	_, err := v.Validate(ctx, token)
	return err == nil
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// classifyError maps a parser error onto a platform error. Every parser
// failure is an invalid token; the specific reason stays in the cause.
func classifyError(err error) *sserr.Error {
	if err == nil {
		return nil
	}

	var ssError *sserr.Error
	if errors.As(err, &ssError) {
		return ssError
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is unverifiable")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token validation failed")
	}
}

func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and marks it failed.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
