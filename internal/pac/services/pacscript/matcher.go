package pacscript

import (
	"slices"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

// Matcher evaluates FindProxyForURL in Go against the same sorted list the
// script embeds.
type Matcher struct {
	domains   []string
	endpoints domain.ProxyEndpoints
}

// NewMatcher copies and sorts domains.
func NewMatcher(domains []string, endpoints domain.ProxyEndpoints) *Matcher {
	sorted := slices.Clone(domains)
	Sort(sorted)
	return &Matcher{domains: sorted, endpoints: endpoints}
}

// Len returns the number of embedded domains, duplicates included.
func (m *Matcher) Len() int { return len(m.domains) }

// Domains returns a copy of the sorted domain list.
func (m *Matcher) Domains() []string { return slices.Clone(m.domains) }

// Endpoints returns the proxy endpoints used for matches.
func (m *Matcher) Endpoints() domain.ProxyEndpoints { return m.endpoints }

// Match reports whether host, after reduction, is in the list.
func (m *Matcher) Match(host string) bool {
	return m.Contains(ReduceHost(host))
}

// Contains runs the script's closed-interval binary search for target as
// given, without reduction.
func (m *Matcher) Contains(target string) bool {
	left, right := 0, len(m.domains)-1
	for left <= right {
		mid := left + (right-left)/2
		switch c := Compare(m.domains[mid], target); {
		case c == 0:
			return true
		case c < 0:
			left = mid + 1
		default:
			right = mid - 1
		}
	}
	return false
}

// FindProxyForURL returns the directive the script would return. The url is
// unused, as in the script.
func (m *Matcher) FindProxyForURL(_ string, host string) string {
	if m.Match(host) {
		return m.endpoints.Directive()
	}
	return domain.DirectRoute
}
