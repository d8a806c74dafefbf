package utils

import "testing"

func TestCanonicalHostname(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple domain", input: "example.com", expected: "example.com"},
		{name: "trailing dot", input: "example.com.", expected: "example.com"},
		{name: "multiple trailing dots", input: "example.com..", expected: "example.com"},
		{name: "uppercase", input: "EXAMPLE.COM", expected: "example.com"},
		{name: "mixed case subdomain", input: "WwW.ExAmPlE.CoM", expected: "www.example.com"},
		{name: "surrounding whitespace", input: "\t example.com \n", expected: "example.com"},
		{name: "single label", input: "LOCALHOST", expected: "localhost"},
		{name: "root", input: ".", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "punycode untouched", input: "xn--80ak6aa92e.com", expected: "xn--80ak6aa92e.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalHostname(tt.input); got != tt.expected {
				t.Errorf("CanonicalHostname(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsCanonicalHostname(t *testing.T) {
	cases := map[string]bool{
		"example.com":  true,
		"Example.com":  false,
		"example.com.": false,
		" example.com": false,
		"":             true,
	}
	for input, want := range cases {
		if got := IsCanonicalHostname(input); got != want {
			t.Errorf("IsCanonicalHostname(%q) = %v, want %v", input, got, want)
		}
	}
}
