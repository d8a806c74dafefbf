package domain

import "slices"

// DefaultExclusions are never proxied, whatever the registry or the local
// blocklist say.
var DefaultExclusions = []string{"youtube.com"}

// ExclusionSet is an immutable set of hosts removed from the composed set.
// Membership is a case-sensitive exact string match.
type ExclusionSet struct {
	members map[string]struct{}
}

// NewExclusionSet builds a set from hosts. Empty strings are ignored.
func NewExclusionSet(hosts ...string) ExclusionSet {
	m := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h == "" {
			continue
		}
		m[h] = struct{}{}
	}
	return ExclusionSet{members: m}
}

// Contains reports whether host is excluded.
func (s ExclusionSet) Contains(host string) bool {
	_, ok := s.members[host]
	return ok
}

// Len returns the number of excluded hosts.
func (s ExclusionSet) Len() int { return len(s.members) }

// Members returns the excluded hosts sorted ascending.
func (s ExclusionSet) Members() []string {
	out := make([]string, 0, len(s.members))
	for h := range s.members {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Filter returns the hosts of domains that are not excluded, preserving order.
func (s ExclusionSet) Filter(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if s.Contains(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}
