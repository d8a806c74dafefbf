package bolt

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/repos/state"
)

var bucketState = []byte("state")

// bucketCreator is the subset of *bbolt.Tx used to create buckets.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

func ensureBuckets(tx bucketCreator) error {
	if _, err := tx.CreateBucketIfNotExists(bucketState); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucketState, err)
	}
	return nil
}

// ensureBucketsFn is swapped in tests to exercise the failure path of New.
var ensureBucketsFn = func(tx bucketCreator) error { return ensureBuckets(tx) }

// boltStore implements state.Store using bbolt. Every read-modify-write of a
// collection happens inside a single read-write transaction, so concurrent
// mutations cannot lose each other's updates.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (state.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrPersistence, path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketState).Get([]byte(key))
		if v != nil {
			// values are only valid for the life of the transaction
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", domain.ErrPersistence, key, err)
	}
	return out, out != nil, nil
}

func (s *boltStore) Set(key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketState).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrPersistence, key, err)
	}
	return nil
}

func (s *boltStore) LoadSnapshot() (domain.RegistrySnapshot, bool, error) {
	raw, ok, err := s.Get(state.KeyDomains)
	if err != nil || !ok {
		return domain.RegistrySnapshot{}, false, err
	}
	snap, err := state.DecodeSnapshot(raw)
	if err != nil {
		return domain.RegistrySnapshot{}, false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return snap, true, nil
}

func (s *boltStore) SaveSnapshot(snap domain.RegistrySnapshot) error {
	raw, err := state.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return s.Set(state.KeyDomains, raw)
}

func (s *boltStore) LoadBlocked() ([]domain.BlockedEntry, error) {
	raw, _, err := s.Get(state.KeyBlockedDomains)
	if err != nil {
		return nil, err
	}
	entries, err := state.DecodeBlocked(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return entries, nil
}

func (s *boltStore) UpdateBlocked(fn func([]domain.BlockedEntry) ([]domain.BlockedEntry, error)) error {
	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketState)
		current, err := state.DecodeBlocked(b.Get([]byte(state.KeyBlockedDomains)))
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		raw, err := state.EncodeBlocked(next)
		if err != nil {
			return err
		}
		return b.Put([]byte(state.KeyBlockedDomains), raw)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", domain.ErrPersistence, state.KeyBlockedDomains, err)
	}
	return nil
}

var _ state.Store = (*boltStore)(nil)
