package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/login", "example_com"},
		{"http://localhost:3000/#/home", "localhost_3000"},
		{"https://sub.my-site.org", "sub_my-site_org"},
		{"not a url", DefaultDomain},
		{"", DefaultDomain},
		{"https://[::1]:8080/", "1__8080"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainName(tt.url))
		})
	}
}

func TestPagePath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com", "/"},
		{"https://example.com/login", "/login"},
		{"https://example.com/#/login", "/#/login"},
		{"https://example.com/app?x=1#settings", "/app#settings"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, PagePath(tt.url))
		})
	}
}
