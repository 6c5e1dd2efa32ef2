// Package targets restricts which web pages testpilot may index or test.
//
// Hosts are matched against glob patterns (github.com/gobwas/glob). Denied
// patterns take precedence over allowed ones; with no allowed patterns every
// host that is not denied is accepted.
package targets

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Violation is returned when a target URL is rejected.
type Violation struct {
	URL    string
	Host   string
	Reason string
}

func (e *Violation) Error() string {
	return fmt.Sprintf("target not allowed (%s): %s", e.Reason, e.URL)
}

// Guard validates target URLs. A nil Guard accepts every well-formed
// http(s) URL.
type Guard struct {
	allowedPatterns []glob.Glob
	deniedPatterns  []glob.Glob
}

// NewGuard compiles the host patterns.
func NewGuard(allowed, denied []string) (*Guard, error) {
	g := &Guard{}

	for _, pattern := range allowed {
		compiled, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid allowed pattern '%s': %w", pattern, err)
		}
		g.allowedPatterns = append(g.allowedPatterns, compiled)
	}

	for _, pattern := range denied {
		compiled, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid denied pattern '%s': %w", pattern, err)
		}
		g.deniedPatterns = append(g.deniedPatterns, compiled)
	}

	return g, nil
}

// IsAllowedHost returns true if host passes the pattern rules.
func (g *Guard) IsAllowedHost(host string) bool {
	if g == nil {
		return true
	}
	host = strings.ToLower(host)

	for _, pattern := range g.deniedPatterns {
		if pattern.Match(host) {
			return false
		}
	}

	if len(g.allowedPatterns) == 0 {
		return true
	}

	for _, pattern := range g.allowedPatterns {
		if pattern.Match(host) {
			return true
		}
	}

	return false
}

// Validate checks that raw is an absolute http(s) URL whose host is allowed.
func (g *Guard) Validate(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return &Violation{URL: raw, Reason: "malformed url"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Violation{URL: raw, Reason: "scheme must be http or https"}
	}
	host := u.Hostname()
	if host == "" {
		return &Violation{URL: raw, Reason: "missing host"}
	}
	if !g.IsAllowedHost(host) {
		return &Violation{URL: raw, Host: host, Reason: "host denied"}
	}
	return nil
}
