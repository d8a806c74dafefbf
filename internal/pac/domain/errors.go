package domain

import "errors"

var (
	// ErrRegistryFetch marks network, status or decoding failures of the
	// remote registry. It is recovered by falling back to the cached snapshot.
	ErrRegistryFetch = errors.New("registry fetch failed")

	// ErrPersistence marks failures reading or writing persisted state. It
	// aborts the current apply cycle.
	ErrPersistence = errors.New("persistence failed")

	// ErrConfigSubmission marks a proxy configuration rejected by the host.
	// The previously applied configuration stays in effect.
	ErrConfigSubmission = errors.New("proxy configuration rejected")

	// ErrInvalidHost marks a host that cannot be stored in the blocklist.
	ErrInvalidHost = errors.New("invalid host")
)
