package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Reachability classifies a stored blocklist entry against the PAC matcher,
// which reduces every looked-up host to its last two labels before an exact
// comparison.
type Reachability uint8

const (
	// Reachable entries have at most two labels and are not a public suffix.
	Reachable Reachability = iota
	// SubdomainEntry entries have more than two labels under an ordinary
	// registrable domain (sub.example.com) and never match.
	SubdomainEntry
	// MultiLabelSuffix entries are registered under a multi-label public
	// suffix (bbc.co.uk) and never match.
	MultiLabelSuffix
	// PublicSuffixEntry entries are themselves a public suffix (co.uk) and
	// match every registrable domain beneath it.
	PublicSuffixEntry
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case SubdomainEntry:
		return "subdomain_entry"
	case MultiLabelSuffix:
		return "multi_label_suffix"
	case PublicSuffixEntry:
		return "public_suffix_entry"
	default:
		return "unknown"
	}
}

// ClassifyEntry reports how name will behave once embedded in a PAC script.
// It does not change matching; callers use it for diagnostics only.
func ClassifyEntry(name string) Reachability {
	name = CanonicalHostname(name)
	labels := strings.Count(name, ".") + 1
	if labels <= 2 {
		if suffix, icann := publicsuffix.PublicSuffix(name); icann && suffix == name && labels == 2 {
			return PublicSuffixEntry
		}
		return Reachable
	}
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		// name is itself a public suffix with more than two labels.
		return MultiLabelSuffix
	}
	if strings.Count(apex, ".") >= 2 {
		return MultiLabelSuffix
	}
	return SubdomainEntry
}
