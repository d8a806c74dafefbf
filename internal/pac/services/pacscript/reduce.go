package pacscript

import "strings"

// ReduceHost applies the script's host normalization: strip one trailing dot,
// then keep only the last two labels. Hosts with fewer than two labels are
// returned unchanged. Multi-label public suffixes (co.uk) are not special
// cased, so www.bbc.co.uk reduces to co.uk.
func ReduceHost(host string) string {
	host = strings.TrimSuffix(host, ".")

	last := strings.LastIndexByte(host, '.')
	if last == -1 {
		return host
	}
	var prev int
	if last == 0 {
		// lastIndexOf('.', -1) in the script clamps to index 0
		prev = 0
	} else {
		prev = strings.LastIndexByte(host[:last], '.')
	}
	if prev == -1 {
		return host
	}
	return host[prev+1:]
}
