// Package blocklist is the local, user-triggered blocklist. Entries are kept
// for a retention window and removed by the expiry sweep.
package blocklist

import (
	"fmt"
	"slices"
	"time"

	"github.com/haukened/rr-pac/internal/pac/common/clock"
	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/common/metrics"
	"github.com/haukened/rr-pac/internal/pac/common/utils"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/repos/state"
)

// Options configures a Store.
type Options struct {
	Backend   state.BlockedStore
	Clock     clock.Clock
	Logger    log.Logger
	Retention time.Duration
}

// Store records blocked hosts with the time they were added.
type Store struct {
	backend   state.BlockedStore
	clock     clock.Clock
	logger    log.Logger
	retention time.Duration
}

// New constructs a Store. Retention defaults to domain.DefaultRetention.
func New(opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("blocklist backend is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Retention <= 0 {
		opts.Retention = domain.DefaultRetention
	}
	return &Store{
		backend:   opts.Backend,
		clock:     opts.Clock,
		logger:    opts.Logger,
		retention: opts.Retention,
	}, nil
}

// Retention returns the configured retention window.
func (s *Store) Retention() time.Duration { return s.retention }

// AddDomain stores host unless an entry with exactly the same string exists.
// It reports whether a new entry was written.
func (s *Store) AddDomain(host string) (bool, error) {
	entry, err := domain.NewBlockedEntry(host, s.clock.Now())
	if err != nil {
		return false, err
	}

	var added bool
	var size int
	err = s.backend.UpdateBlocked(func(cur []domain.BlockedEntry) ([]domain.BlockedEntry, error) {
		size = len(cur)
		if slices.ContainsFunc(cur, func(e domain.BlockedEntry) bool { return e.Domain == host }) {
			return cur, nil
		}
		added = true
		size++
		return append(cur, entry), nil
	})
	if err != nil {
		return false, err
	}

	metrics.BlockedDomains.Set(float64(size))
	if !added {
		s.logger.Debug(map[string]any{"host": host}, "host already blocked")
		return false, nil
	}
	metrics.BlockedAddedTotal.Inc()
	s.logger.Info(map[string]any{"host": host, "entries": size}, "host added to blocked set")
	if !utils.IsCanonicalHostname(host) {
		// stored verbatim: matching is exact and case-sensitive
		s.logger.Warn(map[string]any{
			"host":      host,
			"canonical": utils.CanonicalHostname(host),
		}, "blocked host is not in canonical form and may never match")
	}
	return true, nil
}

// Remove deletes host (exact match). It reports whether an entry was removed.
func (s *Store) Remove(host string) (bool, error) {
	var removed bool
	var size int
	err := s.backend.UpdateBlocked(func(cur []domain.BlockedEntry) ([]domain.BlockedEntry, error) {
		next := slices.DeleteFunc(cur, func(e domain.BlockedEntry) bool { return e.Domain == host })
		removed = len(next) != len(cur)
		size = len(next)
		return next, nil
	})
	if err != nil {
		return false, err
	}
	metrics.BlockedDomains.Set(float64(size))
	if removed {
		s.logger.Info(map[string]any{"host": host}, "host removed from blocked set")
	}
	return removed, nil
}

// ExpireOutdated drops every entry whose age, measured now, has reached the
// retention window, and returns what was removed.
func (s *Store) ExpireOutdated() ([]domain.BlockedEntry, error) {
	var removed []domain.BlockedEntry
	var size int
	err := s.backend.UpdateBlocked(func(cur []domain.BlockedEntry) ([]domain.BlockedEntry, error) {
		removed = removed[:0]
		now := s.clock.Now()
		kept := make([]domain.BlockedEntry, 0, len(cur))
		for _, e := range cur {
			if e.Expired(now, s.retention) {
				removed = append(removed, e)
				continue
			}
			kept = append(kept, e)
		}
		size = len(kept)
		return kept, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BlockedDomains.Set(float64(size))
	metrics.BlockedExpiredTotal.Add(float64(len(removed)))
	s.logger.Info(map[string]any{
		"removed":   len(removed),
		"remaining": size,
		"retention": s.retention.String(),
	}, "outdated blocked hosts removed")
	return removed, nil
}

// Entries returns the stored entries.
func (s *Store) Entries() ([]domain.BlockedEntry, error) {
	return s.backend.LoadBlocked()
}

// Domains returns the stored hosts.
func (s *Store) Domains() ([]string, error) {
	entries, err := s.backend.LoadBlocked()
	if err != nil {
		return nil, err
	}
	return domain.BlockedDomains(entries), nil
}
