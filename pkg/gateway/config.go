package gateway

import (
	"time"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// DefaultUpstreamTimeout bounds the wait for a target's response headers
// when no timeout is configured.
const DefaultUpstreamTimeout = 30 * time.Second

// Config holds the gateway configuration. It is loaded with pkg/config;
// the env tags name the variables read in containerized deployments and
// from the .env file of the local profile.
//
//	cfg := config.MustLoad[gateway.Config](config.New().WithDotEnv(".env"))
type Config struct {
	// Addr is the listen address.
	// Environment variable: GATEWAY_ADDR
	Addr string `json:"addr" yaml:"addr" env:"GATEWAY_ADDR" envDefault:":8080"`

	// Profile selects the default targets: "docker" or "local".
	// Environment variable: GATEWAY_PROFILE
	Profile string `json:"profile" yaml:"profile" env:"GATEWAY_PROFILE" envDefault:"local"`

	// RoutesFile optionally replaces the default route table with a YAML
	// file.
	// Environment variable: GATEWAY_ROUTES_FILE
	RoutesFile string `json:"routes_file" yaml:"routesFile" env:"GATEWAY_ROUTES_FILE"`

	// PublicKey is the issuer's RSA public key, base64 X.509 or PEM.
	// Environment variable: JWT_PUBLIC_KEY
	PublicKey string `json:"public_key" yaml:"publicKey" env:"JWT_PUBLIC_KEY" required:"true"`

	// UpstreamTimeout bounds the wait for a target's response headers.
	// Environment variable: GATEWAY_UPSTREAM_TIMEOUT
	UpstreamTimeout time.Duration `json:"upstream_timeout" yaml:"upstreamTimeout" env:"GATEWAY_UPSTREAM_TIMEOUT" envDefault:"30s"`

	// ShutdownTimeout bounds graceful shutdown.
	// Environment variable: GATEWAY_SHUTDOWN_TIMEOUT
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdownTimeout" env:"GATEWAY_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Targets overrides the profile's service addresses.
	Targets TargetOverrides `json:"targets" yaml:"targets" env:"GATEWAY_TARGET"`

	// JWT configures token validation.
	JWT auth.ValidatorConfig `json:"jwt" yaml:"jwt"`
}

// TargetOverrides replaces individual service addresses, e.g.
// GATEWAY_TARGET_USER_SERVICE=http://users.internal:8081.
type TargetOverrides struct {
	UserService       string `json:"user_service" yaml:"userService" env:"USER_SERVICE"`
	AssessmentService string `json:"assessment_service" yaml:"assessmentService" env:"ASSESSMENT_SERVICE"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return sserr.New(sserr.CodeValidation, "gateway: addr is required")
	}
	if c.UpstreamTimeout <= 0 {
		return sserr.New(sserr.CodeValidation, "gateway: upstream timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return sserr.New(sserr.CodeValidation, "gateway: shutdown timeout must be positive")
	}
	if _, err := c.ResolveTargets(); err != nil {
		return err
	}
	return c.JWT.Validate()
}

// ResolveTargets returns the profile's targets with overrides applied.
func (c *Config) ResolveTargets() (Targets, error) {
	base, err := DefaultTargets(c.Profile)
	if err != nil {
		return nil, err
	}
	targets := base.With(map[string]string{
		ServiceUsers:       c.Targets.UserService,
		ServiceAssessments: c.Targets.AssessmentService,
	})
	if _, err := targets.Parse(); err != nil {
		return nil, err
	}
	return targets, nil
}

// Table returns the route table from RoutesFile, or [DefaultTable].
func (c *Config) Table() (*Table, error) {
	if c.RoutesFile == "" {
		return DefaultTable(), nil
	}
	return LoadTable(c.RoutesFile)
}
