package domain

import "fmt"

// ProxyEndpoints are the two upstream proxies embedded into every script:
// HTTPS for encrypted traffic and HTTP for plaintext.
type ProxyEndpoints struct {
	HTTPS string
	HTTP  string
}

// DefaultProxyEndpoints are used when configuration does not override them.
var DefaultProxyEndpoints = ProxyEndpoints{
	HTTPS: "proxy-ssl.roskomsvoboda.org:33333",
	HTTP:  "proxy-nossl.roskomsvoboda.org:33333",
}

// Directive returns the routing directive for a proxied host.
func (p ProxyEndpoints) Directive() string {
	return fmt.Sprintf("HTTPS %s; PROXY %s;", p.HTTPS, p.HTTP)
}

// DirectRoute is the routing directive for hosts that are not blocked.
const DirectRoute = "DIRECT"

// Scope identifies which browsing context a proxy configuration applies to.
type Scope string

// ScopeRegular is the regular, non-private browsing context, the only one
// the daemon configures.
const ScopeRegular Scope = "regular"

// ProxyMode is the kind of configuration submitted to the host.
type ProxyMode string

// ModePACScript submits a PAC script, the only mode the daemon uses.
const ModePACScript ProxyMode = "pac_script"

// ProxySettings is one submission to the host proxy-configuration API.
// Mandatory=false lets the host fall back to direct connections when the
// script is invalid instead of failing every request.
type ProxySettings struct {
	Mode      ProxyMode
	Script    string
	Mandatory bool
	Scope     Scope
}

// NewPACSettings returns the settings the controller submits for script.
func NewPACSettings(script string) ProxySettings {
	return ProxySettings{Mode: ModePACScript, Script: script, Mandatory: false, Scope: ScopeRegular}
}

// Validate checks the settings before submission.
func (s ProxySettings) Validate() error {
	switch s.Scope {
	case ScopeRegular:
	default:
		return fmt.Errorf("%w: unsupported scope %q", ErrConfigSubmission, s.Scope)
	}
	if s.Mode != ModePACScript {
		return fmt.Errorf("%w: unsupported mode %q", ErrConfigSubmission, s.Mode)
	}
	if s.Script == "" {
		return fmt.Errorf("%w: empty pac script", ErrConfigSubmission)
	}
	return nil
}
