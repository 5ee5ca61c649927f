// Package gateway implements the platform's edge router: an ordered
// route-protection matrix that decides, per request path, which
// downstream service receives the request and whether a verified bearer
// token is required first.
//
// # Request Flow
//
//	client -> Gateway.ServeHTTP
//	       -> Table.Resolve(path)           404 when no rule matches
//	       -> auth.HTTPMiddleware           only when Rule.RequiresAuth
//	       -> auth.RequireRole              only when Rule.MinRole is set
//	       -> Rule.Rewrite
//	       -> reverse proxy to Targets[Rule.Service]
//
// Authentication at the gateway is a first pass. Every downstream service
// validates the forwarded token again with its own filter; the identity
// headers the gateway sets are informational only.
//
// # Route Patterns
//
// A rule path is either a literal ("/api/v1/auth/login"), may contain
// single-segment wildcards ("/api/v1/*/health"), or may end in "/**",
// which matches the prefix itself and everything below it. Rules are
// evaluated in order and the first match wins, after the rule's own
// Exclude patterns are applied.
package gateway

import (
	"os"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/StricklySoft/academic-platform/pkg/auth"
	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// ErrNoRoute is returned by [Table.Resolve] when no rule matches.
var ErrNoRoute = sserr.New(sserr.CodeNotFoundRoute, "gateway: no route matches the request path")

// Rule is one entry of the route-protection matrix.
type Rule struct {
	// Name identifies the rule in logs and metrics.
	Name string `json:"name" yaml:"name"`

	// Paths are the patterns the rule matches.
	Paths []string `json:"paths" yaml:"paths"`

	// Exclude are patterns carved out of Paths. A path matching both is
	// left to later rules.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// Service is the key into [Targets], or [ServiceSelf].
	Service string `json:"service" yaml:"service"`

	// RequiresAuth enables bearer-token validation for the rule.
	RequiresAuth bool `json:"requiresAuth" yaml:"requiresAuth"`

	// MinRole optionally restricts the rule to identities ranking at
	// least this role. It requires RequiresAuth.
	MinRole auth.Role `json:"minRole,omitempty" yaml:"minRole,omitempty"`

	// Rewrite optionally rewrites the path before forwarding.
	Rewrite *Rewrite `json:"rewrite,omitempty" yaml:"rewrite,omitempty"`
}

// Rewrite replaces the request path using a regular expression, e.g.
//
//	Pattern:     "/api/user-service/actuator/(?P<segment>.*)"
//	Replacement: "/actuator/${segment}"
//
// A path the pattern does not match is forwarded unchanged.
type Rewrite struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`

	re *regexp.Regexp
}

// Apply returns the rewritten path.
func (rw *Rewrite) Apply(p string) string {
	if rw == nil || rw.re == nil {
		return p
	}
	return rw.re.ReplaceAllString(p, rw.Replacement)
}

// Matches reports whether p falls under the rule.
func (r Rule) Matches(p string) bool {
	return matchAny(r.Paths, p) && !matchAny(r.Exclude, p)
}

// RewritePath applies the rule's rewrite to p, if any.
func (r Rule) RewritePath(p string) string {
	return r.Rewrite.Apply(p)
}

// Table is an ordered, immutable route-protection matrix. Build one with
// [NewTable], [LoadTable] or [DefaultTable]. A Table is safe for
// concurrent use.
type Table struct {
	rules []Rule
}

// tableFile is the on-disk format of a route table.
type tableFile struct {
	Routes []Rule `yaml:"routes"`
}

// NewTable validates rules and compiles their rewrites.
func NewTable(rules []Rule) (*Table, error) {
	seen := make(map[string]bool, len(rules))
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if seen[r.Name] {
			return nil, sserr.Newf(sserr.CodeValidation, "gateway: duplicate route name %q", r.Name)
		}
		seen[r.Name] = true

		if r.Rewrite != nil {
			re, err := regexp.Compile(r.Rewrite.Pattern)
			if err != nil {
				return nil, sserr.Wrapf(err, sserr.CodeValidation,
					"gateway: route %q has an invalid rewrite pattern", r.Name)
			}
			r.Rewrite = &Rewrite{Pattern: r.Rewrite.Pattern, Replacement: r.Rewrite.Replacement, re: re}
		}
		r.Paths = append([]string(nil), r.Paths...)
		r.Exclude = append([]string(nil), r.Exclude...)
		compiled[i] = r
	}
	return &Table{rules: compiled}, nil
}

// ParseTable reads a YAML route table:
//
//	routes:
//	  - name: assessments
//	    paths: [/api/v1/assessments/**]
//	    service: assessment-service
//	    requiresAuth: true
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "gateway: failed to parse route table")
	}
	if len(f.Routes) == 0 {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "gateway: route table has no routes")
	}
	return NewTable(f.Routes)
}

// LoadTable reads a YAML route table from path.
func LoadTable(path string) (*Table, error) {
	if strings.Contains(path, "..") {
		return nil, sserr.New(sserr.CodeInternalConfiguration,
			"gateway: routes file path must not contain directory traversal (..) sequences")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"gateway: failed to read routes file %q", path)
	}
	return ParseTable(data)
}

// Rules returns a copy of the rules in evaluation order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Resolve returns the first rule matching p. The path is cleaned first, so
// dot segments cannot move a request from one rule into another.
func (t *Table) Resolve(p string) (Rule, error) {
	i := t.index(p)
	if i < 0 {
		return Rule{}, ErrNoRoute
	}
	return t.rules[i], nil
}

func (t *Table) index(p string) int {
	p = CleanPath(p)
	for i, r := range t.rules {
		if r.Matches(p) {
			return i
		}
	}
	return -1
}

// Services returns the distinct non-self services the table routes to.
func (t *Table) Services() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range t.rules {
		if r.Service == ServiceSelf || seen[r.Service] {
			continue
		}
		seen[r.Service] = true
		out = append(out, r.Service)
	}
	return out
}

// Validate reports the first service the table routes to that targets
// does not define.
func (t *Table) Validate(targets Targets) error {
	for _, r := range t.rules {
		if r.Service == ServiceSelf {
			continue
		}
		if _, ok := targets[r.Service]; !ok {
			return sserr.Newf(sserr.CodeInternalConfiguration,
				"gateway: route %q targets unknown service %q", r.Name, r.Service)
		}
	}
	return nil
}

// CleanPath resolves dot segments and duplicate slashes. A trailing slash
// is kept.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func validateRule(r Rule) error {
	if r.Name == "" {
		return sserr.New(sserr.CodeValidation, "gateway: route name is required")
	}
	if r.Service == "" {
		return sserr.Newf(sserr.CodeValidation, "gateway: route %q has no service", r.Name)
	}
	if len(r.Paths) == 0 {
		return sserr.Newf(sserr.CodeValidation, "gateway: route %q has no paths", r.Name)
	}
	for _, p := range append(append([]string(nil), r.Paths...), r.Exclude...) {
		if err := validatePattern(p); err != nil {
			return sserr.Wrapf(err, sserr.CodeValidation, "gateway: route %q", r.Name)
		}
	}
	if r.MinRole != "" {
		if !r.MinRole.Valid() {
			return sserr.Newf(sserr.CodeValidation, "gateway: route %q has unknown minRole %q", r.Name, r.MinRole)
		}
		if !r.RequiresAuth {
			return sserr.Newf(sserr.CodeValidation, "gateway: route %q sets minRole without requiresAuth", r.Name)
		}
	}
	if r.Rewrite != nil && r.Rewrite.Pattern == "" {
		return sserr.Newf(sserr.CodeValidation, "gateway: route %q has an empty rewrite pattern", r.Name)
	}
	return nil
}

func validatePattern(p string) error {
	if !strings.HasPrefix(p, "/") {
		return sserr.Newf(sserr.CodeValidation, "pattern %q must start with /", p)
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if s == "**" && i != len(segs)-1 {
			return sserr.Newf(sserr.CodeValidation, "pattern %q: ** is only allowed as the last segment", p)
		}
		if s != "*" && s != "**" && strings.Contains(s, "*") {
			return sserr.Newf(sserr.CodeValidation, "pattern %q: wildcards must span a whole segment", p)
		}
	}
	return nil
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern matches p against a validated pattern segment by segment.
func matchPattern(pattern, p string) bool {
	ps := strings.Split(pattern, "/")
	xs := strings.Split(p, "/")
	for i, seg := range ps {
		if seg == "**" {
			return true
		}
		if i >= len(xs) {
			return false
		}
		switch seg {
		case "*":
			if xs[i] == "" {
				return false
			}
		default:
			if seg != xs[i] {
				return false
			}
		}
	}
	return len(xs) == len(ps)
}
