package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-pac/internal/pac/common/clock"
	"github.com/haukened/rr-pac/internal/pac/common/log/logtest"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/gateways/proxyconf"
	"github.com/haukened/rr-pac/internal/pac/repos/blocklist"
	"github.com/haukened/rr-pac/internal/pac/repos/decision/bloom"
	"github.com/haukened/rr-pac/internal/pac/repos/decision/lru"
	"github.com/haukened/rr-pac/internal/pac/repos/state/bolt"
	"github.com/haukened/rr-pac/internal/pac/services/composer"
	"github.com/haukened/rr-pac/internal/pac/services/decider"
	"github.com/haukened/rr-pac/internal/pac/services/registrysync"
)

var t0 = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

// stubFetcher serves a settable registry list.
type stubFetcher struct {
	mu      sync.Mutex
	domains []string
	err     error
	calls   int
}

func (f *stubFetcher) set(domains []string, err error) {
	f.mu.Lock()
	f.domains, f.err = domains, err
	f.mu.Unlock()
}

func (f *stubFetcher) FetchDomains(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return slices.Clone(f.domains), nil
}

// gatedProxy wraps a configurator and can be told to reject submissions.
type gatedProxy struct {
	ProxyConfigurator
	mu     sync.Mutex
	reject bool
	calls  int
	errs   chan error
}

func (p *gatedProxy) Apply(ctx context.Context, s domain.ProxySettings) error {
	p.mu.Lock()
	p.calls++
	reject := p.reject
	p.mu.Unlock()
	if reject {
		return errors.New("proxy settings are controlled by another extension")
	}
	return p.ProxyConfigurator.Apply(ctx, s)
}

func (p *gatedProxy) Errors() <-chan error { return p.errs }

func (p *gatedProxy) setReject(v bool) {
	p.mu.Lock()
	p.reject = v
	p.mu.Unlock()
}

type harness struct {
	ctrl      *Controller
	clock     *clock.MockClock
	fetcher   *stubFetcher
	served    *proxyconf.Served
	proxy     *gatedProxy
	decider   *decider.Decider
	blocklist *blocklist.Store
	logs      *logtest.Recorder
}

func newHarness(t *testing.T, registry ...string) *harness {
	t.Helper()
	h := &harness{
		clock:   &clock.MockClock{CurrentTime: t0},
		fetcher: &stubFetcher{domains: registry},
		logs:    logtest.NewRecorder(),
	}

	st, err := bolt.New(filepath.Join(t.TempDir(), "pac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h.blocklist, err = blocklist.New(blocklist.Options{Backend: st, Clock: h.clock, Logger: h.logs})
	require.NoError(t, err)
	syncer, err := registrysync.New(registrysync.Options{Fetcher: h.fetcher, Store: st, Clock: h.clock, Logger: h.logs})
	require.NoError(t, err)
	comp, err := composer.New(composer.Options{
		Blocklist:  h.blocklist,
		Registry:   syncer,
		Exclusions: domain.NewExclusionSet(domain.DefaultExclusions...),
		Logger:     h.logs,
	})
	require.NoError(t, err)

	cache, err := lru.New(64)
	require.NoError(t, err)
	h.decider = decider.New(decider.Options{Cache: cache, Filters: bloom.NewFactory(), FPRate: 0.01})
	h.served = proxyconf.NewServed(h.clock)
	h.proxy = &gatedProxy{ProxyConfigurator: h.served, errs: make(chan error, 4)}

	h.ctrl, err = New(Options{
		Composer:         comp,
		Blocklist:        h.blocklist,
		Registry:         syncer,
		Proxy:            h.proxy,
		Decider:          h.decider,
		Endpoints:        domain.DefaultProxyEndpoints,
		RegistryInterval: time.Hour,
		SweepInterval:    time.Hour,
		Clock:            h.clock,
		Logger:           h.logs,
	})
	require.NoError(t, err)
	return h
}

// servedDomains extracts the embedded array from the served script.
func (h *harness) servedDomains(t *testing.T) []string {
	t.Helper()
	script := h.served.Script()
	const marker = "var domains = "
	start := strings.Index(script, marker)
	if start == -1 {
		return nil
	}
	rest := script[start+len(marker):]
	end := strings.Index(rest, ";\n")
	require.NotEqual(t, -1, end)
	var out []string
	require.NoError(t, json.Unmarshal([]byte(rest[:end]), &out))
	return out
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t)
	base := Options{Composer: h.ctrl.composer, Blocklist: h.blocklist, Registry: h.ctrl.registry, Proxy: h.proxy}

	for name, mutate := range map[string]func(*Options){
		"composer":  func(o *Options) { o.Composer = nil },
		"blocklist": func(o *Options) { o.Blocklist = nil },
		"registry":  func(o *Options) { o.Registry = nil },
		"proxy":     func(o *Options) { o.Proxy = nil },
	} {
		t.Run(name, func(t *testing.T) {
			o := base
			mutate(&o)
			_, err := New(o)
			require.Error(t, err)
		})
	}

	c, err := New(base)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultProxyEndpoints, c.endpoints)
	assert.Equal(t, DefaultRegistryInterval, c.registryInterval)
	assert.Equal(t, DefaultSweepInterval, c.sweepInterval)
	assert.Equal(t, domain.CycleIdle, c.State())
}

func TestBlock_EndToEnd(t *testing.T) {
	h := newHarness(t, "b.com", "a.com")
	ctx := context.Background()

	require.NoError(t, h.ctrl.Block(ctx, "c.com"))

	assert.Equal(t, []string{"a.com", "b.com", "c.com"}, h.servedDomains(t))
	assert.True(t, h.decider.Decide("sub.a.com").Proxied)
	assert.Equal(t, domain.DefaultProxyEndpoints.Directive(), h.decider.Decide("sub.a.com").Route)
	assert.False(t, h.decider.Decide("d.com").Proxied)

	assert.Equal(t, domain.CycleIdle, h.ctrl.State())
	last := h.ctrl.LastCycle()
	assert.True(t, last.OK())
	assert.Equal(t, 3, last.Domains)
	assert.False(t, last.Degraded)
	assert.Contains(t, h.logs.Messages("info"), "pac has been set successfully")
}

func TestBlock_Idempotent(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()

	require.NoError(t, h.ctrl.Block(ctx, "x.com"))
	require.NoError(t, h.ctrl.Block(ctx, "x.com"))

	entries, err := h.blocklist.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"a.com", "x.com"}, h.servedDomains(t))
}

func TestBlock_ExcludedHostNeverProxied(t *testing.T) {
	h := newHarness(t, "youtube.com", "a.com")
	require.NoError(t, h.ctrl.Block(context.Background(), "youtube.com"))
	assert.Equal(t, []string{"a.com"}, h.servedDomains(t))
	assert.False(t, h.decider.Decide("www.youtube.com").Proxied)
}

func TestBlock_EmptyHost(t *testing.T) {
	h := newHarness(t)
	err := h.ctrl.Block(context.Background(), " ")
	require.ErrorIs(t, err, domain.ErrInvalidHost)
	assert.Equal(t, 0, h.proxy.calls)
}

func TestApply_SubmissionFailureKeepsPriorConfig(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Apply(ctx, ""))
	before := h.served.Script()

	h.proxy.setReject(true)
	err := h.ctrl.Block(ctx, "b.com")
	require.ErrorIs(t, err, domain.ErrConfigSubmission)

	assert.Equal(t, before, h.served.Script())
	assert.False(t, h.decider.Decide("b.com").Proxied, "decider keeps the applied list")
	assert.Equal(t, domain.CycleFailed, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.LastCycle().Err, domain.ErrConfigSubmission)

	// the block itself was persisted and is applied by the next cycle
	h.proxy.setReject(false)
	require.NoError(t, h.ctrl.Apply(ctx, ""))
	assert.Equal(t, []string{"a.com", "b.com"}, h.servedDomains(t))
	assert.Equal(t, domain.CycleIdle, h.ctrl.State())
}

func TestApply_ColdStartFailureIsDegraded(t *testing.T) {
	h := newHarness(t)
	h.fetcher.set(nil, fmt.Errorf("%w: dial tcp: timeout", domain.ErrRegistryFetch))

	require.NoError(t, h.ctrl.Block(context.Background(), "c.com"))
	assert.Equal(t, []string{"c.com"}, h.servedDomains(t))
	assert.True(t, h.ctrl.LastCycle().Degraded)
}

func TestApply_UsesCachedSnapshotWithoutRefetch(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Apply(ctx, ""))
	require.NoError(t, h.ctrl.Block(ctx, "b.com"))
	require.NoError(t, h.ctrl.Block(ctx, "c.com"))
	assert.Equal(t, 1, h.fetcher.calls)
}

func TestApply_PersistenceFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.ctrl.composer = failingComposer{err: fmt.Errorf("%w: disk full", domain.ErrPersistence)}

	err := h.ctrl.Apply(context.Background(), "a.com")
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 0, h.proxy.calls)
	assert.Equal(t, domain.CycleFailed, h.ctrl.State())
}

type failingComposer struct{ err error }

func (f failingComposer) Load(context.Context, string) (composer.Sources, error) {
	return composer.Sources{}, f.err
}

func (f failingComposer) Merge(composer.Sources) composer.Composition {
	return composer.Composition{}
}

// stateRecordingComposer records the controller state seen by each step.
type stateRecordingComposer struct {
	Composer
	ctrl    *Controller
	atLoad  domain.CycleState
	atMerge domain.CycleState
}

func (s *stateRecordingComposer) Load(ctx context.Context, host string) (composer.Sources, error) {
	s.atLoad = s.ctrl.State()
	return s.Composer.Load(ctx, host)
}

func (s *stateRecordingComposer) Merge(src composer.Sources) composer.Composition {
	s.atMerge = s.ctrl.State()
	return s.Composer.Merge(src)
}

func TestApply_StateTracksEachStep(t *testing.T) {
	h := newHarness(t, "a.com")
	steps := &stateRecordingComposer{Composer: h.ctrl.composer, ctrl: h.ctrl}
	h.ctrl.composer = steps

	require.NoError(t, h.ctrl.Apply(context.Background(), "b.com"))
	assert.Equal(t, domain.CycleLoading, steps.atLoad)
	assert.Equal(t, domain.CycleComposing, steps.atMerge)
	assert.Equal(t, domain.CycleIdle, h.ctrl.State())
}

func TestExpireOutdated_ReappliesRegistryAndSurvivors(t *testing.T) {
	h := newHarness(t, "b.com", "a.com")
	ctx := context.Background()

	require.NoError(t, h.ctrl.Block(ctx, "old.com"))
	h.clock.Advance(1_000_000 * time.Second)
	require.NoError(t, h.ctrl.Block(ctx, "new.com"))

	// old.com reaches 2,700,000s, new.com is at 1,700,000s
	h.clock.Advance(1_700_000 * time.Second)
	removed, err := h.ctrl.ExpireOutdated(ctx)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "old.com", removed[0].Domain)

	assert.Equal(t, []string{"a.com", "b.com", "new.com"}, h.servedDomains(t))
	assert.False(t, h.decider.Decide("old.com").Proxied)
}

func TestExpireOutdated_RetainsYoungEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Block(ctx, "x.com"))

	h.clock.Advance(1_000_000 * time.Second)
	removed, err := h.ctrl.ExpireOutdated(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, []string{"x.com"}, h.servedDomains(t))
}

func TestUnblock(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Block(ctx, "x.com"))
	calls := h.proxy.calls

	removed, err := h.ctrl.Unblock(ctx, "x.com")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"a.com"}, h.servedDomains(t))
	assert.Equal(t, calls+1, h.proxy.calls)

	removed, err = h.ctrl.Unblock(ctx, "a.com")
	require.NoError(t, err)
	assert.False(t, removed, "registry hosts are not in the local blocklist")
	assert.Equal(t, calls+1, h.proxy.calls, "nothing to re-apply")
}

func TestRefreshRegistry(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Apply(ctx, ""))

	h.fetcher.set([]string{"z.com", "y.com"}, nil)
	snap, err := h.ctrl.RefreshRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z.com", "y.com"}, snap.Domains)
	assert.Equal(t, []string{"y.com", "z.com"}, h.servedDomains(t))

	h.fetcher.set(nil, fmt.Errorf("%w: status 502", domain.ErrRegistryFetch))
	calls := h.proxy.calls
	snap, err = h.ctrl.RefreshRegistry(ctx)
	require.ErrorIs(t, err, domain.ErrRegistryFetch)
	assert.Equal(t, []string{"z.com", "y.com"}, snap.Domains, "cached snapshot returned")
	assert.Equal(t, calls, h.proxy.calls)
	assert.Equal(t, []string{"y.com", "z.com"}, h.servedDomains(t))
}

func TestClear(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Apply(ctx, ""))
	require.True(t, h.decider.Decide("a.com").Proxied)

	require.NoError(t, h.ctrl.Clear(ctx))
	assert.Nil(t, h.servedDomains(t))
	assert.Contains(t, h.served.Script(), "return 'DIRECT';")
	assert.False(t, h.decider.Decide("a.com").Proxied)
}

func TestApply_ReportsUnreachableEntries(t *testing.T) {
	h := newHarness(t, "a.com", "www.example.com", "bbc.co.uk")
	require.NoError(t, h.ctrl.Apply(context.Background(), ""))

	var reasons []string
	for _, e := range h.logs.Entries() {
		if e.Level == "warn" && e.Msg == "pac entries will not match as listed" {
			reasons = append(reasons, e.Fields["reason"].(string))
		}
	}
	assert.ElementsMatch(t, []string{"subdomain_entry", "multi_label_suffix"}, reasons)
	// entries are still embedded as listed
	assert.Equal(t, []string{"a.com", "bbc.co.uk", "www.example.com"}, h.servedDomains(t))
}

func TestConcurrentBlocksAndSweeps(t *testing.T) {
	h := newHarness(t, "a.com")
	ctx := context.Background()
	require.NoError(t, h.ctrl.Apply(ctx, ""))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.ctrl.Block(ctx, fmt.Sprintf("h%02d.com", i)))
		}(i)
		go func() {
			defer wg.Done()
			_, err := h.ctrl.ExpireOutdated(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	domains, err := h.blocklist.Domains()
	require.NoError(t, err)
	assert.Len(t, domains, 20, "no block lost to a concurrent sweep")

	require.NoError(t, h.ctrl.Apply(ctx, ""))
	assert.Len(t, h.servedDomains(t), 21)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, "a.com")
	h.ctrl.registryInterval = 10 * time.Millisecond
	h.ctrl.sweepInterval = 10 * time.Millisecond

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Error(t, h.ctrl.Start(context.Background()), "second start rejected")

	h.fetcher.set([]string{"fresh.com"}, nil)
	assert.Eventually(t, func() bool {
		return slices.Equal(h.servedDomains(t), []string{"fresh.com"})
	}, 2*time.Second, 10*time.Millisecond)

	h.proxy.errs <- errors.New("net::ERR_PROXY_CONNECTION_FAILED")
	assert.Eventually(t, func() bool {
		return slices.Contains(h.logs.Messages("error"), "proxy error")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.ctrl.Stop())
	require.NoError(t, h.ctrl.Stop(), "stop is idempotent")

	// restartable after stop
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.NoError(t, h.ctrl.Stop())
}

func TestStart_ParentContextCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.ctrl.Start(ctx))
	cancel()
	require.NoError(t, h.ctrl.Stop())
}
