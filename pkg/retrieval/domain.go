package retrieval

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultDomain names pages whose URL has no usable host.
const DefaultDomain = "default_domain"

var domainUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// DomainName derives the index partition for rawURL from its host and port.
// Characters outside [a-zA-Z0-9_-] become underscores.
func DomainName(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return DefaultDomain
	}
	domain := domainUnsafe.ReplaceAllString(u.Host, "_")
	domain = strings.Trim(domain, "_")
	if domain == "" {
		return DefaultDomain
	}
	return domain
}

// PagePath returns the path of rawURL including any fragment, so single-page
// app routes such as /#/login stay distinct.
func PagePath(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "/"
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.Fragment != "" {
		path += "#" + u.Fragment
	}
	return path
}
