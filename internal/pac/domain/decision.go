package domain

// RouteDecision is the routing outcome for one host, as the applied PAC
// script would compute it.
type RouteDecision struct {
	Host    string `json:"host"`
	Reduced string `json:"reduced"`
	Proxied bool   `json:"proxied"`
	Route   string `json:"route"`
}

// DirectDecision returns a non-proxied decision for host.
func DirectDecision(host, reduced string) RouteDecision {
	return RouteDecision{Host: host, Reduced: reduced, Route: DirectRoute}
}
