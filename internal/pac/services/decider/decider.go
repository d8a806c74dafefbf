// Package decider answers "how would the applied PAC script route this host"
// without evaluating JavaScript.
package decider

import (
	"sync"

	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/common/metrics"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/repos/decision"
	"github.com/haukened/rr-pac/internal/pac/services/pacscript"
)

// Options configures a Decider.
type Options struct {
	Cache   decision.DecisionCache
	Filters decision.BloomFactory
	FPRate  float64
	Logger  log.Logger
}

// Decider composes a Bloom pre-check, a decision cache and the matcher of
// the last applied script. Decide runs cache → bloom → matcher; Swap
// replaces the matcher and rebuilds the filter, purging the cache.
type Decider struct {
	mu      sync.RWMutex
	matcher *pacscript.Matcher
	bloom   decision.BloomFilter

	cache   decision.DecisionCache
	filters decision.BloomFactory
	fpRate  float64
	logger  log.Logger
}

// New constructs a Decider with nothing applied; every host routes DIRECT
// until the first Swap.
func New(opts Options) *Decider {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Decider{
		cache:   opts.Cache,
		filters: opts.Filters,
		fpRate:  opts.FPRate,
		logger:  opts.Logger,
	}
}

// Swap installs the matcher of a newly applied script. A nil matcher means
// the configuration was cleared.
func (d *Decider) Swap(m *pacscript.Matcher) {
	var bf decision.BloomFilter
	if m != nil && d.filters != nil {
		bf = d.filters.New(uint64(m.Len()), d.fpRate)
		for _, name := range m.Domains() {
			bf.Add(name)
		}
	}

	d.mu.Lock()
	d.matcher = m
	d.bloom = bf
	if d.cache != nil {
		d.cache.Purge()
	}
	d.mu.Unlock()

	fields := map[string]any{"domains": 0}
	if m != nil {
		fields["domains"] = m.Len()
	}
	if bf != nil {
		fields["bloom_hosts"] = bf.Len()
	}
	d.logger.Debug(fields, "decision matcher swapped")
}

// Decide returns the route the applied script would pick for host.
func (d *Decider) Decide(host string) domain.RouteDecision {
	reduced := pacscript.ReduceHost(host)

	d.mu.RLock()
	dec := d.decide(reduced)
	d.mu.RUnlock()

	dec.Host = host
	if dec.Proxied {
		metrics.DecisionsTotal.WithLabelValues("proxy").Inc()
	} else {
		metrics.DecisionsTotal.WithLabelValues("direct").Inc()
	}
	return dec
}

// decide must be called with mu held for reading.
func (d *Decider) decide(reduced string) domain.RouteDecision {
	if d.matcher == nil {
		return domain.DirectDecision("", reduced)
	}
	if d.bloom != nil && !d.bloom.MightContain(reduced) {
		return domain.DirectDecision("", reduced)
	}
	if d.cache != nil {
		if dec, ok := d.cache.Get(reduced); ok {
			return dec
		}
	}

	dec := domain.DirectDecision("", reduced)
	if d.matcher.Contains(reduced) {
		dec.Proxied = true
		dec.Route = d.matcher.Endpoints().Directive()
	}
	if d.cache != nil {
		d.cache.Put(reduced, dec)
	}
	return dec
}

// Stats reports the applied list size and cache counters.
type Stats struct {
	Domains int                 `json:"domains"`
	Cache   decision.CacheStats `json:"cache"`
}

// Stats returns a best-effort snapshot of the decider state.
func (d *Decider) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var s Stats
	if d.matcher != nil {
		s.Domains = d.matcher.Len()
	}
	if d.cache != nil {
		s.Cache.Size = d.cache.Len()
		s.Cache.Hits, s.Cache.Misses, s.Cache.Evictions = d.cache.Stats()
	}
	return s
}
