// Package controller orchestrates apply cycles: block, compose, generate and
// submit. It owns the registry refresh and expiry sweep loops.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-pac/internal/pac/common/clock"
	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/common/metrics"
	"github.com/haukened/rr-pac/internal/pac/common/utils"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/services/pacscript"
)

const (
	DefaultRegistryInterval = 2 * time.Hour
	DefaultSweepInterval    = 2 * time.Hour
)

// maxUnreachableSamples bounds the entries quoted in the diagnostics log.
const maxUnreachableSamples = 5

// Options configures a Controller.
type Options struct {
	Composer  Composer
	Blocklist Blocklist
	Registry  Registry
	Proxy     ProxyConfigurator
	// Decider is optional.
	Decider   Decider
	Endpoints domain.ProxyEndpoints

	RegistryInterval time.Duration
	SweepInterval    time.Duration

	Clock  clock.Clock
	Logger log.Logger
}

// Controller serializes every mutation behind one lock so a block request
// and an expiry sweep can never interleave.
type Controller struct {
	composer  Composer
	blocklist Blocklist
	registry  Registry
	proxy     ProxyConfigurator
	decider   Decider
	endpoints domain.ProxyEndpoints

	registryInterval time.Duration
	sweepInterval    time.Duration

	clock  clock.Clock
	logger log.Logger

	mu sync.Mutex

	stateMu sync.RWMutex
	state   domain.CycleState
	last    domain.CycleResult

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New constructs a Controller.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Composer == nil:
		return nil, fmt.Errorf("composer is required")
	case opts.Blocklist == nil:
		return nil, fmt.Errorf("blocklist is required")
	case opts.Registry == nil:
		return nil, fmt.Errorf("registry is required")
	case opts.Proxy == nil:
		return nil, fmt.Errorf("proxy configurator is required")
	}
	if opts.Endpoints == (domain.ProxyEndpoints{}) {
		opts.Endpoints = domain.DefaultProxyEndpoints
	}
	if opts.RegistryInterval <= 0 {
		opts.RegistryInterval = DefaultRegistryInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Controller{
		composer:         opts.Composer,
		blocklist:        opts.Blocklist,
		registry:         opts.Registry,
		proxy:            opts.Proxy,
		decider:          opts.Decider,
		endpoints:        opts.Endpoints,
		registryInterval: opts.RegistryInterval,
		sweepInterval:    opts.SweepInterval,
		clock:            opts.Clock,
		logger:           opts.Logger,
	}, nil
}

// State returns the step the current cycle is in.
func (c *Controller) State() domain.CycleState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// LastCycle returns the outcome of the most recent apply cycle.
func (c *Controller) LastCycle() domain.CycleResult {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.last
}

func (c *Controller) setState(s domain.CycleState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Apply composes, generates and submits a PAC configuration. A non-empty
// host is added to the local blocklist first.
func (c *Controller) Apply(ctx context.Context, host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(ctx, host)
}

// Block adds host to the local blocklist and re-applies.
func (c *Controller) Block(ctx context.Context, host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: host must not be empty", domain.ErrInvalidHost)
	}
	return c.Apply(ctx, host)
}

// Unblock removes host from the local blocklist and re-applies when it was
// present. Registry hosts cannot be unblocked.
func (c *Controller) Unblock(ctx context.Context, host string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed, err := c.blocklist.Remove(host)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	return true, c.apply(ctx, "")
}

// ExpireOutdated runs the expiry sweep and re-applies the full set.
func (c *Controller) ExpireOutdated(ctx context.Context) ([]domain.BlockedEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed, err := c.blocklist.ExpireOutdated()
	if err != nil {
		return nil, err
	}
	return removed, c.apply(ctx, "")
}

// RefreshRegistry re-fetches the registry and re-applies on success. On a
// fetch failure the cached snapshot stays in use and nothing is applied.
func (c *Controller) RefreshRegistry(ctx context.Context) (domain.RegistrySnapshot, error) {
	snap, err := c.registry.Refresh(ctx)
	if err != nil {
		return snap, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return snap, c.apply(ctx, "")
}

// Clear removes the regular-scope configuration.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.proxy.Clear(ctx, domain.ScopeRegular); err != nil {
		err = wrapSubmission(err)
		c.logger.Error(map[string]any{"error": err}, "failed to clear proxy configuration")
		return err
	}
	if c.decider != nil {
		c.decider.Swap(nil)
	}
	metrics.PacDomains.Set(0)
	c.logger.Info(nil, "proxy auto-config disabled")
	return nil
}

// apply must be called with mu held.
func (c *Controller) apply(ctx context.Context, host string) (err error) {
	result := domain.CycleResult{StartedAt: c.clock.Now()}
	defer func() {
		result.FinishedAt = c.clock.Now()
		result.Err = err
		c.stateMu.Lock()
		c.last = result
		if err != nil {
			c.state = domain.CycleFailed
			metrics.ApplyTotal.WithLabelValues("failure").Inc()
		} else {
			c.state = domain.CycleIdle
			metrics.ApplyTotal.WithLabelValues("success").Inc()
		}
		c.stateMu.Unlock()
	}()

	c.setState(domain.CycleLoading)
	src, err := c.composer.Load(ctx, host)
	if err != nil {
		c.logger.Error(map[string]any{"error": err, "host": host}, "failed to load domain sources")
		return err
	}
	result.Degraded = src.Degraded
	if host != "" && src.Added {
		c.logger.Info(map[string]any{"host": host}, "site has been added to set of blocked by DPI")
	}

	c.setState(domain.CycleComposing)
	comp := c.composer.Merge(src)
	c.reportUnreachable(comp.Domains)

	c.setState(domain.CycleGenerating)
	script, err := pacscript.Generate(comp.Domains, c.endpoints)
	if err != nil {
		c.logger.Error(map[string]any{"error": err}, "failed to generate pac script")
		return err
	}
	result.Domains = len(comp.Domains)

	c.setState(domain.CycleSubmitting)
	if err = c.proxy.Apply(ctx, domain.NewPACSettings(script)); err != nil {
		err = wrapSubmission(err)
		c.logger.Error(map[string]any{"error": err, "domains": result.Domains}, "pac submission rejected, previous configuration stays active")
		return err
	}

	// Generate sorted comp.Domains in place.
	if c.decider != nil {
		c.decider.Swap(pacscript.NewMatcher(comp.Domains, c.endpoints))
	}
	metrics.PacDomains.Set(float64(result.Domains))
	c.logger.Info(map[string]any{
		"domains":  result.Domains,
		"registry": comp.Registry,
		"local":    comp.Local,
		"excluded": comp.Excluded,
		"degraded": comp.Degraded,
	}, "pac has been set successfully")
	return nil
}

// reportUnreachable counts embedded entries the second-level matcher can
// never match as written. Matching is not changed.
func (c *Controller) reportUnreachable(domains []string) {
	counts := map[utils.Reachability]int{}
	samples := map[utils.Reachability][]string{}
	for _, d := range domains {
		r := utils.ClassifyEntry(d)
		if r == utils.Reachable {
			continue
		}
		counts[r]++
		if len(samples[r]) < maxUnreachableSamples {
			samples[r] = append(samples[r], d)
		}
	}
	for _, r := range []utils.Reachability{utils.SubdomainEntry, utils.MultiLabelSuffix, utils.PublicSuffixEntry} {
		metrics.UnreachableEntries.WithLabelValues(r.String()).Set(float64(counts[r]))
		if counts[r] == 0 {
			continue
		}
		c.logger.Warn(map[string]any{
			"reason":  r.String(),
			"count":   counts[r],
			"samples": samples[r],
		}, "pac entries will not match as listed")
	}
}

func wrapSubmission(err error) error {
	if errors.Is(err, domain.ErrConfigSubmission) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrConfigSubmission, err)
}

// Start launches the registry refresh loop, the expiry sweep loop and the
// proxy error subscription. It returns immediately.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("controller already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.every(gctx, c.registryInterval, "registry refresh", func(ctx context.Context) error {
			_, err := c.RefreshRegistry(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		c.every(gctx, c.sweepInterval, "expiry sweep", func(ctx context.Context) error {
			_, err := c.ExpireOutdated(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		c.watchProxyErrors(gctx)
		return nil
	})

	c.cancel = cancel
	c.group = g
	c.logger.Info(map[string]any{
		"registry_interval": c.registryInterval.String(),
		"sweep_interval":    c.sweepInterval.String(),
	}, "controller started")
	return nil
}

// Stop cancels the loops and waits for them to return.
func (c *Controller) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	err := c.group.Wait()
	c.cancel, c.group = nil, nil
	c.logger.Info(nil, "controller stopped")
	return err
}

// every runs fn on each tick until ctx is done. Failures wait for the next
// tick; there is no retry in between.
func (c *Controller) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				c.logger.Error(map[string]any{"error": err, "task": name}, "scheduled task failed")
			}
		}
	}
}

func (c *Controller) watchProxyErrors(ctx context.Context) {
	errs := c.proxy.Errors()
	if errs == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			c.logger.Error(map[string]any{"error": err}, "proxy error")
		}
	}
}
