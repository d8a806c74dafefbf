package pacscript

import (
	"slices"
	"strings"
	"unicode/utf16"
)

// Compare orders strings the way the PAC runtime's < operator does: by
// UTF-16 code units. For ASCII hostnames this is plain byte order.
func Compare(a, b string) int {
	if isASCII(a) && isASCII(b) {
		return strings.Compare(a, b)
	}
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// Sort sorts domains in place in the order the embedded matcher expects.
func Sort(domains []string) {
	slices.SortFunc(domains, Compare)
}

// IsSorted reports whether domains is in matcher order.
func IsSorted(domains []string) bool {
	return slices.IsSortedFunc(domains, Compare)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
