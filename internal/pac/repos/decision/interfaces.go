// Package decision holds the lookup structures behind the routing decision
// service: a Bloom pre-check and a bounded decision cache.
package decision

import "github.com/haukened/rr-pac/internal/pac/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is a probabilistic set of reduced hosts. MightContain never
// reports false for a host that was added.
type BloomFilter interface {
	Add(host string)
	MightContain(host string) bool
	Len() uint64
}

// BloomFactory builds filters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches route decisions by reduced host with basic metrics.
type DecisionCache interface {
	Get(reduced string) (domain.RouteDecision, bool)
	Put(reduced string, d domain.RouteDecision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Size      int    `json:"size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}
