package service

import (
	"time"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Config holds the assessment service configuration.
//
//	cfg := config.MustLoad[service.Config](config.New().WithDotEnv(".env"))
type Config struct {
	// Addr is the HTTP listen address.
	// Environment variable: ASSESSMENT_ADDR
	Addr string `json:"addr" yaml:"addr" env:"ASSESSMENT_ADDR" envDefault:":8082"`

	// GRPCAddr is the gRPC listen address. Empty disables gRPC.
	// Environment variable: ASSESSMENT_GRPC_ADDR
	GRPCAddr string `json:"grpc_addr" yaml:"grpcAddr" env:"ASSESSMENT_GRPC_ADDR" envDefault:":9082"`

	// PublicKey is the issuer's RSA public key, base64 X.509 or PEM.
	// Environment variable: JWT_PUBLIC_KEY
	PublicKey string `json:"public_key" yaml:"publicKey" env:"JWT_PUBLIC_KEY" required:"true"`

	// ShutdownTimeout bounds graceful shutdown.
	// Environment variable: ASSESSMENT_SHUTDOWN_TIMEOUT
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdownTimeout" env:"ASSESSMENT_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// JWT configures token validation.
	JWT auth.ValidatorConfig `json:"jwt" yaml:"jwt"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return sserr.New(sserr.CodeValidation, "service: addr is required")
	}
	if c.GRPCAddr != "" && c.GRPCAddr == c.Addr {
		return sserr.New(sserr.CodeValidation, "service: grpc addr must differ from addr")
	}
	if c.ShutdownTimeout <= 0 {
		return sserr.New(sserr.CodeValidation, "service: shutdown timeout must be positive")
	}
	return c.JWT.Validate()
}
