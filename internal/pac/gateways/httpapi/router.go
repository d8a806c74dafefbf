// Package httpapi exposes the PAC script, routing decisions and blocklist
// management over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/common/metrics"
	"github.com/haukened/rr-pac/internal/pac/domain"
)

// Controller is the orchestration surface the API drives.
type Controller interface {
	Apply(ctx context.Context, host string) error
	Block(ctx context.Context, host string) error
	Unblock(ctx context.Context, host string) (bool, error)
	Clear(ctx context.Context) error
	RefreshRegistry(ctx context.Context) (domain.RegistrySnapshot, error)
	State() domain.CycleState
	LastCycle() domain.CycleResult
}

// Blocklist lists local entries.
type Blocklist interface {
	Entries() ([]domain.BlockedEntry, error)
	Retention() time.Duration
}

// Decider answers routing queries.
type Decider interface {
	Decide(host string) domain.RouteDecision
}

// Options configures the router.
type Options struct {
	Controller Controller
	Blocklist  Blocklist
	Decider    Decider
	// PAC serves the applied script.
	PAC http.Handler
	// Rate and Burst limit mutating requests; Rate <= 0 disables limiting.
	Rate  float64
	Burst int
	// RequestTimeout bounds each request. Zero means 30s.
	RequestTimeout time.Duration
	Logger         log.Logger
}

type api struct {
	ctrl      Controller
	blocklist Blocklist
	decider   Decider
	logger    log.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	a := &api{
		ctrl:      opts.Controller,
		blocklist: opts.Blocklist,
		decider:   opts.Decider,
		logger:    opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, instrument(a.logger), recoverer(a.logger), middleware.Timeout(opts.RequestTimeout))

	r.Get("/healthz", a.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if opts.PAC != nil {
		r.Method(http.MethodGet, "/proxy.pac", opts.PAC)
		r.Method(http.MethodHead, "/proxy.pac", opts.PAC)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/status", a.status)
		v1.Get("/decision", a.decision)
		v1.Get("/blocked", a.listBlocked)

		v1.Group(func(mut chi.Router) {
			mut.Use(rateLimit(opts.Rate, opts.Burst))
			mut.Post("/blocked", a.block)
			mut.Delete("/blocked/{host}", a.unblock)
			mut.Post("/registry/refresh", a.refresh)
			mut.Post("/proxy/apply", a.apply)
			mut.Post("/proxy/clear", a.clear)
		})
	})
	return r
}
