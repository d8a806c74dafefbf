// Package registrysync keeps the registry snapshot cached and persisted.
package registrysync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/haukened/rr-pac/internal/pac/common/clock"
	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/common/metrics"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/repos/state"
)

// Fetcher downloads the registry domain list.
type Fetcher interface {
	FetchDomains(ctx context.Context) ([]string, error)
}

// Options configures a Syncer.
type Options struct {
	Fetcher Fetcher
	Store   state.SnapshotStore
	Clock   clock.Clock
	Logger  log.Logger
}

// Syncer owns the RegistrySnapshot. Concurrent refreshes are collapsed into
// one fetch.
type Syncer struct {
	fetcher Fetcher
	store   state.SnapshotStore
	clock   clock.Clock
	logger  log.Logger

	current atomic.Pointer[domain.RegistrySnapshot]
	group   singleflight.Group
}

// New constructs a Syncer.
func New(opts Options) (*Syncer, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("registry fetcher is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Syncer{fetcher: opts.Fetcher, store: opts.Store, clock: opts.Clock, logger: opts.Logger}, nil
}

// Refresh fetches the registry and replaces the snapshot. On a fetch failure
// the previous snapshot is returned unchanged along with an error wrapping
// domain.ErrRegistryFetch. Persistence failures wrap domain.ErrPersistence.
//
// The fetch is shared by concurrent callers, so it runs detached from the
// caller's cancellation and relies on the fetcher's own timeout.
func (s *Syncer) Refresh(ctx context.Context) (domain.RegistrySnapshot, error) {
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do("refresh", func() (any, error) {
		return s.refresh(flightCtx)
	})
	if shared {
		s.logger.Debug(nil, "registry refresh shared with a concurrent caller")
	}
	return v.(domain.RegistrySnapshot), err
}

func (s *Syncer) refresh(ctx context.Context) (domain.RegistrySnapshot, error) {
	domains, fetchErr := s.fetcher.FetchDomains(ctx)
	if fetchErr != nil {
		metrics.RegistryRefreshTotal.WithLabelValues("failure").Inc()
		prev, _, err := s.cached()
		s.logger.Error(map[string]any{
			"error":        fetchErr,
			"cached":       len(prev.Domains),
			"snapshot_age": prev.Age(s.clock.Now()).String(),
		}, "error on fetching registry, keeping cached snapshot")
		if err != nil {
			return prev, errors.Join(fetchErr, err)
		}
		return prev, fetchErr
	}

	snap := domain.NewRegistrySnapshot(domains, s.clock.Now())
	if err := s.store.SaveSnapshot(snap); err != nil {
		metrics.RegistryRefreshTotal.WithLabelValues("failure").Inc()
		prev, _, _ := s.cached()
		return prev, fmt.Errorf("save registry snapshot: %w", err)
	}
	s.current.Store(&snap)

	metrics.RegistryRefreshTotal.WithLabelValues("success").Inc()
	metrics.RegistryLastSuccessUnix.Set(float64(snap.FetchedAt.Unix()))
	metrics.RegistryDomains.Set(float64(len(snap.Domains)))
	s.logger.Info(map[string]any{"domains": len(snap.Domains)}, "local database synchronized with registry")
	return snap, nil
}

// Snapshot returns the cached snapshot. When none exists yet it blocks on a
// refresh (cold start). A failed cold start returns an empty snapshot with
// the fetch error so the caller can continue degraded.
func (s *Syncer) Snapshot(ctx context.Context) (domain.RegistrySnapshot, error) {
	snap, ok, err := s.cached()
	if err != nil {
		return domain.RegistrySnapshot{}, err
	}
	if ok {
		return snap, nil
	}
	s.logger.Warn(nil, "no registry snapshot cached, fetching domains from registry")
	return s.Refresh(ctx)
}

// cached returns the in-memory snapshot, loading it from the store the first
// time.
func (s *Syncer) cached() (domain.RegistrySnapshot, bool, error) {
	if p := s.current.Load(); p != nil {
		return *p, true, nil
	}
	snap, ok, err := s.store.LoadSnapshot()
	if err != nil {
		return domain.RegistrySnapshot{}, false, err
	}
	if !ok {
		return domain.RegistrySnapshot{}, false, nil
	}
	s.current.CompareAndSwap(nil, &snap)
	metrics.RegistryDomains.Set(float64(len(snap.Domains)))
	return *s.current.Load(), true, nil
}
