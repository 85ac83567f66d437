package interact

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// HostMatcher decides which hosts navigation may reach. Patterns are globs
// over dot-separated labels ("*.example.com" matches one label,
// "**.example.com" any number). A leading "!" denies matching hosts.
type HostMatcher struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewHostMatcher compiles the given patterns.
func NewHostMatcher(patterns []string) (*HostMatcher, error) {
	hm := &HostMatcher{}

	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}

		deny := strings.HasPrefix(pattern, "!")
		pattern = strings.TrimPrefix(pattern, "!")

		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid host pattern '%s': %w", pattern, err)
		}
		if deny {
			hm.denied = append(hm.denied, g)
		} else {
			hm.allowed = append(hm.allowed, g)
		}
	}

	return hm, nil
}

// Allows reports whether host may be navigated to. With no allow patterns
// every host not denied is allowed.
func (hm *HostMatcher) Allows(host string) bool {
	host = strings.ToLower(host)

	for _, pattern := range hm.denied {
		if pattern.Match(host) {
			return false
		}
	}

	if len(hm.allowed) == 0 {
		return true
	}

	for _, pattern := range hm.allowed {
		if pattern.Match(host) {
			return true
		}
	}
	return false
}

// AllowsURL checks the host of rawURL. URLs without a host (about:blank,
// data:) are always allowed.
func (hm *HostMatcher) AllowsURL(rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}
	if u.Host == "" {
		return true, nil
	}
	return hm.Allows(u.Hostname()), nil
}
