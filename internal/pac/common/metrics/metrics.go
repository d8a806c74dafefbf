package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reg = prometheus.NewRegistry()

	RegistryRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pacd_registry_refresh_total", Help: "Registry refresh attempts by result"},
		[]string{"result"},
	)
	RegistryLastSuccessUnix = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pacd_registry_last_success_unixtime", Help: "Unix timestamp of the last successful registry refresh"},
	)
	RegistryDomains = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pacd_registry_domains", Help: "Domains in the cached registry snapshot"},
	)
	BlockedDomains = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pacd_blocked_domains", Help: "Locally blocked domains currently retained"},
	)
	BlockedAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pacd_blocked_added_total", Help: "Hosts added to the local blocklist"},
	)
	BlockedExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pacd_blocked_expired_total", Help: "Local blocklist entries removed by the expiry sweep"},
	)
	ApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pacd_apply_total", Help: "PAC apply cycles by result"},
		[]string{"result"},
	)
	PacDomains = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pacd_pac_domains", Help: "Domains embedded in the last applied PAC script"},
	)
	UnreachableEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pacd_pac_unreachable_entries", Help: "Embedded entries the second-level matcher cannot match as intended"},
		[]string{"reason"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pacd_decisions_total", Help: "Routing decisions served by the decision endpoint"},
		[]string{"route"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pacd_http_requests_total", Help: "HTTP requests by method, route and status"},
		[]string{"method", "route", "status"},
	)
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pacd_rate_limiter_rejected_total", Help: "Mutating requests rejected by the rate limiter"},
	)
)

var registered atomic.Bool

// Register adds every collector to the private registry exactly once.
func Register() {
	if registered.Swap(true) {
		return
	}
	reg.MustRegister(
		RegistryRefreshTotal, RegistryLastSuccessUnix, RegistryDomains,
		BlockedDomains, BlockedAddedTotal, BlockedExpiredTotal,
		ApplyTotal, PacDomains, UnreachableEntries,
		DecisionsTotal, HTTPRequestsTotal, RateLimitRejectedTotal,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
