// Package composer builds the set of hosts embedded into the PAC script.
package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haukened/rr-pac/internal/pac/common/log"
	"github.com/haukened/rr-pac/internal/pac/domain"
)

// Blocklist is the local blocklist as seen by the composer.
type Blocklist interface {
	AddDomain(host string) (bool, error)
	Domains() ([]string, error)
}

// Registry serves the cached registry snapshot.
type Registry interface {
	Snapshot(ctx context.Context) (domain.RegistrySnapshot, error)
}

// Options configures a Composer.
type Options struct {
	Blocklist  Blocklist
	Registry   Registry
	Exclusions domain.ExclusionSet
	Logger     log.Logger
}

// Composer merges registry and local hosts minus the exclusion set.
type Composer struct {
	blocklist  Blocklist
	registry   Registry
	exclusions domain.ExclusionSet
	logger     log.Logger
}

// Composition is the output of Merge.
type Composition struct {
	// Domains is (registry ∖ exclusions) ∪ (local ∖ exclusions), unsorted,
	// registry hosts first.
	Domains []string
	// Added is set when the requested host was new to the blocklist.
	Added      bool
	Registry   int
	Local      int
	Excluded   int
	SnapshotAt time.Time
	// Degraded is set when the registry snapshot could not be refreshed;
	// RegistryErr carries the cause.
	Degraded    bool
	RegistryErr error
}

// New constructs a Composer.
func New(opts Options) (*Composer, error) {
	if opts.Blocklist == nil {
		return nil, fmt.Errorf("blocklist is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Composer{
		blocklist:  opts.Blocklist,
		registry:   opts.Registry,
		exclusions: opts.Exclusions,
		logger:     opts.Logger,
	}, nil
}

// Sources is what Load read from storage, before exclusions are applied.
type Sources struct {
	Registry   []string
	Local      []string
	Added      bool
	SnapshotAt time.Time
	// Degraded is set when the registry snapshot could not be refreshed;
	// RegistryErr carries the cause.
	Degraded    bool
	RegistryErr error
}

// Compose is Load followed by Merge.
func (c *Composer) Compose(ctx context.Context, host string) (Composition, error) {
	src, err := c.Load(ctx, host)
	if err != nil {
		return Composition{}, err
	}
	return c.Merge(src), nil
}

// Load adds host to the blocklist when it is not empty, then reads the
// registry snapshot and the local hosts. Registry failures degrade the
// result; persistence failures and invalid hosts abort it.
func (c *Composer) Load(ctx context.Context, host string) (Sources, error) {
	var src Sources

	if host != "" {
		added, err := c.blocklist.AddDomain(host)
		if err != nil {
			return Sources{}, fmt.Errorf("block %q: %w", host, err)
		}
		src.Added = added
	}

	snap, err := c.registry.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			return Sources{}, fmt.Errorf("load registry snapshot: %w", err)
		}
		src.Degraded = true
		src.RegistryErr = err
		c.logger.Warn(map[string]any{
			"error":  err,
			"cached": len(snap.Domains),
		}, "composing with cached registry snapshot")
	}
	src.Registry = snap.Domains
	src.SnapshotAt = snap.FetchedAt

	src.Local, err = c.blocklist.Domains()
	if err != nil {
		return Sources{}, fmt.Errorf("load blocked domains: %w", err)
	}
	return src, nil
}

// Merge drops excluded hosts from both sources and concatenates them,
// registry hosts first.
func (c *Composer) Merge(src Sources) Composition {
	reg := c.exclusions.Filter(src.Registry)
	loc := c.exclusions.Filter(src.Local)

	out := Composition{
		Added:       src.Added,
		Registry:    len(reg),
		Local:       len(loc),
		Excluded:    len(src.Registry) - len(reg) + len(src.Local) - len(loc),
		SnapshotAt:  src.SnapshotAt,
		Degraded:    src.Degraded,
		RegistryErr: src.RegistryErr,
	}
	out.Domains = make([]string, 0, len(reg)+len(loc))
	out.Domains = append(out.Domains, reg...)
	out.Domains = append(out.Domains, loc...)

	c.logger.Debug(map[string]any{
		"registry": out.Registry,
		"local":    out.Local,
		"excluded": out.Excluded,
		"degraded": out.Degraded,
	}, "domain set composed")
	return out
}
