package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyEndpoints_Directive(t *testing.T) {
	p := ProxyEndpoints{HTTPS: "s.example:443", HTTP: "p.example:3128"}
	assert.Equal(t, "HTTPS s.example:443; PROXY p.example:3128;", p.Directive())
	assert.Equal(t,
		"HTTPS proxy-ssl.roskomsvoboda.org:33333; PROXY proxy-nossl.roskomsvoboda.org:33333;",
		DefaultProxyEndpoints.Directive())
}

func TestNewPACSettings(t *testing.T) {
	s := NewPACSettings("function FindProxyForURL(url, host) { return 'DIRECT'; }")
	assert.Equal(t, ModePACScript, s.Mode)
	assert.False(t, s.Mandatory)
	assert.Equal(t, ScopeRegular, s.Scope)
	require.NoError(t, s.Validate())
}

func TestProxySettings_Validate(t *testing.T) {
	tests := []struct {
		name string
		s    ProxySettings
	}{
		{name: "empty script", s: ProxySettings{Mode: ModePACScript, Scope: ScopeRegular}},
		{name: "unknown scope", s: ProxySettings{Mode: ModePACScript, Script: "x", Scope: "other"}},
		{name: "private scope", s: ProxySettings{Mode: ModePACScript, Script: "x", Scope: "incognito_persistent"}},
		{name: "direct mode", s: ProxySettings{Mode: "direct", Scope: ScopeRegular}},
		{name: "unknown mode", s: ProxySettings{Mode: "fixed_servers", Script: "x", Scope: ScopeRegular}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfigSubmission))
		})
	}
	assert.NoError(t, NewPACSettings("x").Validate())
}
