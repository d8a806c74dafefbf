package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/repos/decision"
)

// decisionCache is an LRU-backed implementation of decision.DecisionCache.
type decisionCache struct {
	lru       *lru.Cache[string, domain.RouteDecision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled cache is returned that always misses and tracks no metrics.
func New(size int) (decision.DecisionCache, error) {
	if size <= 0 {
		return disabledCache{}, nil
	}

	dc := &decisionCache{}
	// NewWithEvict also observes Purge-induced evictions.
	cache, err := lru.NewWithEvict(size, func(_ string, _ domain.RouteDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(reduced string) (domain.RouteDecision, bool) {
	if val, ok := c.lru.Get(reduced); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.RouteDecision{}, false
}

func (c *decisionCache) Put(reduced string, d domain.RouteDecision) {
	c.lru.Add(reduced, d)
}

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (disabledCache) Get(string) (domain.RouteDecision, bool) { return domain.RouteDecision{}, false }

func (disabledCache) Put(string, domain.RouteDecision) {}

func (disabledCache) Len() int { return 0 }

func (disabledCache) Purge() {}

func (disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ decision.DecisionCache = (*decisionCache)(nil)
var _ decision.DecisionCache = disabledCache{}
