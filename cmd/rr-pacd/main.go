package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-pac/internal/pac/common/clock"
	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/common/metrics"
	"github.com/haukened/rr-pac/internal/pac/config"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/gateways/httpapi"
	"github.com/haukened/rr-pac/internal/pac/gateways/proxyconf"
	"github.com/haukened/rr-pac/internal/pac/gateways/registry"
	"github.com/haukened/rr-pac/internal/pac/repos/blocklist"
	"github.com/haukened/rr-pac/internal/pac/repos/decision"
	"github.com/haukened/rr-pac/internal/pac/repos/decision/bloom"
	"github.com/haukened/rr-pac/internal/pac/repos/decision/lru"
	"github.com/haukened/rr-pac/internal/pac/repos/state"
	"github.com/haukened/rr-pac/internal/pac/repos/state/bolt"
	"github.com/haukened/rr-pac/internal/pac/services/composer"
	"github.com/haukened/rr-pac/internal/pac/services/controller"
	"github.com/haukened/rr-pac/internal/pac/services/decider"
	"github.com/haukened/rr-pac/internal/pac/services/registrysync"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-pacd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the PAC daemon.
type Application struct {
	config     *config.AppConfig
	store      state.Store
	controller *controller.Controller
	server     *http.Server
	listener   net.Listener
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":      version,
		"env":          cfg.Env,
		"log_level":    cfg.LogLevel,
		"registry_url": cfg.Registry.URL,
		"db":           cfg.Blocklist.DB,
		"http_addr":    cfg.HTTP.Addr,
		"pac_file":     cfg.PAC.File,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	metrics.Register()

	repos, err := buildRepositories(cfg, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	gw, err := buildGateways(cfg, clk)
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to build gateways: %w", err)
	}

	syncer, err := registrysync.New(registrysync.Options{
		Fetcher: gw.registry,
		Store:   repos.store,
		Clock:   clk,
		Logger:  log.Component("registry"),
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to create registry sync: %w", err)
	}

	comp, err := composer.New(composer.Options{
		Blocklist:  repos.blocklist,
		Registry:   syncer,
		Exclusions: domain.NewExclusionSet(cfg.Blocklist.Exclusions...),
		Logger:     log.Component("composer"),
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to create composer: %w", err)
	}

	dec := decider.New(decider.Options{
		Cache:   repos.decisions,
		Filters: bloom.NewFactory(),
		FPRate:  cfg.Decision.FPRate,
		Logger:  log.Component("decider"),
	})

	ctrl, err := controller.New(controller.Options{
		Composer:         comp,
		Blocklist:        repos.blocklist,
		Registry:         syncer,
		Proxy:            gw.proxy,
		Decider:          dec,
		Endpoints:        domain.ProxyEndpoints{HTTPS: cfg.Proxy.HTTPS, HTTP: cfg.Proxy.HTTP},
		RegistryInterval: cfg.Registry.Interval,
		SweepInterval:    cfg.Blocklist.SweepInterval,
		Clock:            clk,
		Logger:           log.Component("controller"),
	})
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	router := httpapi.NewRouter(httpapi.Options{
		Controller: ctrl,
		Blocklist:  repos.blocklist,
		Decider:    dec,
		PAC:        gw.served,
		Rate:       cfg.HTTP.Rate,
		Burst:      cfg.HTTP.Burst,
		Logger:     log.Component("http"),
	})

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		_ = repos.store.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}

	return &Application{
		config:     cfg,
		store:      repos.store,
		controller: ctrl,
		server: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
	}, nil
}

// repositories holds all repository implementations
type repositories struct {
	store     state.Store
	blocklist *blocklist.Store
	decisions decision.DecisionCache
}

// gateways holds all gateway implementations
type gateways struct {
	registry *registry.Client
	served   *proxyconf.Served
	proxy    controller.ProxyConfigurator
}

// buildRepositories opens the state database and builds the stores on top.
func buildRepositories(cfg *config.AppConfig, clk clock.Clock) (*repositories, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Blocklist.DB), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	st, err := bolt.New(cfg.Blocklist.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	bl, err := blocklist.New(blocklist.Options{
		Backend:   st,
		Clock:     clk,
		Logger:    log.Component("blocklist"),
		Retention: cfg.Blocklist.Retention,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create blocklist: %w", err)
	}

	decisions, err := lru.New(cfg.Decision.CacheSize)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	log.Info(map[string]any{
		"db":             cfg.Blocklist.DB,
		"retention":      cfg.Blocklist.Retention.String(),
		"decision_cache": cfg.Decision.CacheSize,
	}, "Repositories initialized")

	return &repositories{store: st, blocklist: bl, decisions: decisions}, nil
}

// buildGateways creates the registry client and the proxy configurators.
func buildGateways(cfg *config.AppConfig, clk clock.Clock) (*gateways, error) {
	client, err := registry.NewClient(registry.Options{
		URL:     cfg.Registry.URL,
		Timeout: cfg.Registry.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry client: %w", err)
	}

	served := proxyconf.NewServed(clk)
	var proxy controller.ProxyConfigurator = served
	if cfg.PAC.File != "" {
		file, err := proxyconf.NewFile(cfg.PAC.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create pac file target: %w", err)
		}
		proxy = proxyconf.NewMulti(served, file)
	}

	log.Info(map[string]any{
		"registry_url": client.URL(),
		"timeout":      cfg.Registry.Timeout.String(),
		"pac_file":     cfg.PAC.File,
	}, "Gateways configured")

	return &gateways{registry: client, served: served, proxy: proxy}, nil
}

// Addr returns the address the HTTP API listens on.
func (app *Application) Addr() string { return app.listener.Addr().String() }

// Run applies the configuration once, starts the background loops and the
// HTTP API, and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	defer func() {
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing state database")
		}
	}()

	if err := app.controller.Apply(ctx, ""); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			_ = app.listener.Close()
			return fmt.Errorf("initial apply: %w", err)
		}
		log.Warn(map[string]any{"error": err}, "Initial apply failed, serving DIRECT until the next cycle")
	}

	if err := app.controller.Start(ctx); err != nil {
		_ = app.listener.Close()
		return fmt.Errorf("failed to start controller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(map[string]any{"address": app.Addr()}, "HTTP API started")
		if err := app.server.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(nil, "Shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err}, "Error during HTTP shutdown")
		}
		return nil
	})

	err := g.Wait()
	if stopErr := app.controller.Stop(); stopErr != nil {
		log.Warn(map[string]any{"error": stopErr}, "Error stopping controller")
	}
	if err != nil {
		return err
	}
	log.Info(nil, "Graceful shutdown completed")
	return nil
}
