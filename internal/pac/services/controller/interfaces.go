package controller

import (
	"context"

	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/services/composer"
	"github.com/haukened/rr-pac/internal/pac/services/pacscript"
)

// ProxyConfigurator is the host proxy-configuration API.
type ProxyConfigurator interface {
	Apply(ctx context.Context, settings domain.ProxySettings) error
	Clear(ctx context.Context, scope domain.Scope) error
	Errors() <-chan error
}

// Composer builds the domain set in two steps: Load persists the optional
// host and reads both sources, Merge applies the exclusions.
type Composer interface {
	Load(ctx context.Context, host string) (composer.Sources, error)
	Merge(src composer.Sources) composer.Composition
}

// Blocklist is the subset of the local blocklist the controller mutates
// directly.
type Blocklist interface {
	Remove(host string) (bool, error)
	ExpireOutdated() ([]domain.BlockedEntry, error)
}

// Registry refreshes the registry snapshot.
type Registry interface {
	Refresh(ctx context.Context) (domain.RegistrySnapshot, error)
}

// Decider receives the matcher of every applied script.
type Decider interface {
	Swap(m *pacscript.Matcher)
}
