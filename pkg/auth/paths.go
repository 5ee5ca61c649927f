package auth

import "strings"

// DefaultPublicPaths are the path prefixes every platform service serves
// without authentication: health and metrics endpoints and the API
// documentation.
var DefaultPublicPaths = []string{
	"/health",
	"/actuator",
	"/metrics",
	"/swagger-ui",
	"/swagger-ui.html",
	"/v3/api-docs",
	"/webjars",
}

// PublicPaths classifies request paths as public or protected by prefix.
// A prefix matches the path itself and anything below it on a segment
// boundary: "/actuator" matches "/actuator" and "/actuator/health" but
// not "/actuatorx".
//
// The zero value treats every path as protected.
type PublicPaths struct {
	prefixes []string
}

// NewPublicPaths returns a classifier over the given prefixes. Trailing
// slashes are ignored and empty prefixes are dropped.
func NewPublicPaths(prefixes ...string) PublicPaths {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		cleaned = append(cleaned, p)
	}
	return PublicPaths{prefixes: cleaned}
}

// IsPublic reports whether path is under one of the public prefixes.
func (p PublicPaths) IsPublic(path string) bool {
	for _, prefix := range p.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the configured prefixes.
func (p PublicPaths) Prefixes() []string {
	return append([]string(nil), p.prefixes...)
}
