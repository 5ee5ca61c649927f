package gateway

import (
	"net/url"
	"strings"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Service names used by the default route table.
const (
	// ServiceUsers is the identity/issuer service: login, users, roles.
	ServiceUsers = "user-service"

	// ServiceAssessments serves assessments, feedback and surveys.
	ServiceAssessments = "assessment-service"

	// ServiceSelf routes a request to the gateway's own handlers.
	ServiceSelf = "self"
)

// Deployment profiles select the default target addresses.
const (
	// ProfileDocker addresses services by their container DNS names.
	ProfileDocker = "docker"

	// ProfileLocal addresses services on loopback.
	ProfileLocal = "local"
)

// Targets maps service names to base URLs.
type Targets map[string]string

// DefaultTargets returns the service addresses of a deployment profile.
func DefaultTargets(profile string) (Targets, error) {
	switch profile {
	case ProfileDocker:
		return Targets{
			ServiceUsers:       "http://unimol-microservice-user-role:8081",
			ServiceAssessments: "http://unimol-microservice-assessment-feedback:8082",
		}, nil
	case ProfileLocal:
		return Targets{
			ServiceUsers:       "http://localhost:8081",
			ServiceAssessments: "http://localhost:8082",
		}, nil
	default:
		return nil, sserr.Newf(sserr.CodeValidation,
			"gateway: unknown profile %q (use %q or %q)", profile, ProfileDocker, ProfileLocal)
	}
}

// With returns a copy of t with every non-empty override applied.
func (t Targets) With(overrides map[string]string) Targets {
	out := make(Targets, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// Parse validates every target and returns the parsed URLs.
func (t Targets) Parse() (map[string]*url.URL, error) {
	out := make(map[string]*url.URL, len(t))
	for name, raw := range t {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"gateway: target %q is not a valid URL", name)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, sserr.Newf(sserr.CodeInternalConfiguration,
				"gateway: target %q must be an absolute http(s) URL, got %q", name, raw)
		}
		out[name] = u
	}
	return out, nil
}
