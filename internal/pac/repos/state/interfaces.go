// Package state defines the persisted key/value layout of rr-pac and the
// interfaces the repositories build on.
package state

import "github.com/haukened/rr-pac/internal/pac/domain"

// Persisted keys.
const (
	KeyDomains        = "domains"
	KeyBlockedDomains = "blockedDomains"
)

// KV is generic get/set persistence by key.
type KV interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
}

// SnapshotStore persists the registry snapshot under KeyDomains.
type SnapshotStore interface {
	// LoadSnapshot returns ok=false when no snapshot was ever saved.
	LoadSnapshot() (snap domain.RegistrySnapshot, ok bool, err error)
	SaveSnapshot(snap domain.RegistrySnapshot) error
}

// BlockedStore persists the local blocklist under KeyBlockedDomains.
type BlockedStore interface {
	LoadBlocked() ([]domain.BlockedEntry, error)
	// UpdateBlocked runs fn as one read-modify-write transaction. When fn
	// returns an error nothing is written.
	UpdateBlocked(fn func([]domain.BlockedEntry) ([]domain.BlockedEntry, error)) error
}

// Store is the full persistence surface.
type Store interface {
	KV
	SnapshotStore
	BlockedStore
	Close() error
}
