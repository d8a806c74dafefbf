package domain

import (
	"slices"
	"time"
)

// RegistrySnapshot is the last successfully fetched copy of the remote
// registry. It is replaced wholesale on refresh and kept on failure.
type RegistrySnapshot struct {
	Domains   []string
	FetchedAt time.Time
}

// NewRegistrySnapshot copies domains so later caller mutation cannot leak
// into a cached snapshot.
func NewRegistrySnapshot(domains []string, fetchedAt time.Time) RegistrySnapshot {
	return RegistrySnapshot{Domains: slices.Clone(domains), FetchedAt: fetchedAt}
}

// IsZero reports whether no snapshot has ever been stored.
func (s RegistrySnapshot) IsZero() bool {
	return s.FetchedAt.IsZero() && s.Domains == nil
}

// Age returns how old the snapshot is relative to now.
func (s RegistrySnapshot) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}
