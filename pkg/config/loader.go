// Package config loads service configuration for the academic platform's
// gateway and microservices. Values are layered, lowest priority first:
//
//	envDefault struct tags
//	YAML/JSON config file          (Loader.WithFile)
//	.env files                     (Loader.WithDotEnv, local profile)
//	process environment variables
//
// Containerized deployments inject the process environment (JWT_PUBLIC_KEY,
// GATEWAY_PROFILE, ...). Developers running services on loopback keep the
// same keys in a .env file next to the binary instead. Values read from
// .env files never modify the process environment.
//
// # Struct Tags
//
//   - `env:"VAR_NAME"`: the environment variable for the field
//   - `envDefault:"value"`: default applied when the field is zero
//   - `required:"true"`: field must be non-zero after loading
//
// File-based loading goes through the `yaml` or `json` tags.
//
// # Usage
//
//	type VerifierConfig struct {
//	    PublicKey string `env:"JWT_PUBLIC_KEY" yaml:"publicKey" required:"true"`
//	    Addr      string `env:"ADDR" envDefault:":8082" yaml:"addr"`
//	}
//
//	cfg := config.MustLoad[VerifierConfig](
//	    config.New().WithFile("service.yaml").WithDotEnv(".env"),
//	)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Loader resolves configuration into a struct. Build one with [New],
// configure it with the With* methods and call [Loader.Load].
//
// A Loader is not safe for concurrent use.
type Loader struct {
	envPrefix   string
	filePath    string
	dotEnvPaths []string
}

// New returns a Loader that reads only defaults and the process
// environment.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends prefix and an underscore to every variable name.
// The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file to load. A
// missing file is not an error. Paths containing ".." are rejected.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithDotEnv adds .env files whose KEY=value pairs are consulted when a
// variable is absent from the process environment. Later files take
// precedence over earlier ones. Missing files are skipped.
func (l *Loader) WithDotEnv(paths ...string) *Loader {
	l.dotEnvPaths = append(l.dotEnvPaths, paths...)
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, then
// validates `required` tags and, if cfg implements [Validator], calls
// Validate.
//
// Loading failures carry [sserr.CodeInternalConfiguration]; validation
// failures carry [sserr.CodeValidationRequired] or [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	dotEnv, err := l.readDotEnv()
	if err != nil {
		return err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotEnv[key]
		return v, ok
	}
	if err := applyEnv(rv, l.envPrefix, lookup); err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T and panics on failure. Intended for func main, where
// a service with bad configuration must not start.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse file %q", l.filePath)
	}
	return nil
}

// readDotEnv merges the configured .env files into one map.
func (l *Loader) readDotEnv() (map[string]string, error) {
	merged := make(map[string]string)
	for _, path := range l.dotEnvPaths {
		if strings.Contains(path, "..") {
			return nil, sserr.New(sserr.CodeInternalConfiguration,
				"config: .env path must not contain directory traversal (..) sequences")
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to read .env file %q", path)
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged, nil
}
