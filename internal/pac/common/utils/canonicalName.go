package utils

import "strings"

// CanonicalHostname returns a hostname in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dots
//
// Blocklist entries are stored as given; this is only used to detect
// spellings that differ from their canonical form.
func CanonicalHostname(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// IsCanonicalHostname reports whether name already is in canonical form.
func IsCanonicalHostname(name string) bool {
	return name == CanonicalHostname(name)
}
