package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRetention is how long a locally blocked host is kept: 2,628,000
// seconds, roughly one month.
const DefaultRetention = 2_628_000 * time.Second

// BlockedEntry is a host the user asked to route through the proxy.
type BlockedEntry struct {
	Domain  string
	AddedAt time.Time
}

// NewBlockedEntry validates host and stamps it with addedAt. The host is
// stored exactly as given; no case or trailing-dot normalization happens.
func NewBlockedEntry(host string, addedAt time.Time) (BlockedEntry, error) {
	e := BlockedEntry{Domain: host, AddedAt: addedAt}
	if err := e.Validate(); err != nil {
		return BlockedEntry{}, err
	}
	return e, nil
}

// Validate checks the entry for required fields.
func (e BlockedEntry) Validate() error {
	if strings.TrimSpace(e.Domain) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidHost)
	}
	if strings.ContainsAny(e.Domain, " \t\r\n\"'\\") {
		return fmt.Errorf("%w: %q contains forbidden characters", ErrInvalidHost, e.Domain)
	}
	if e.AddedAt.IsZero() {
		return fmt.Errorf("blocked entry addedAt must be set")
	}
	return nil
}

// Age returns the entry age measured against now.
func (e BlockedEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.AddedAt)
}

// Expired reports whether the entry has reached the retention window.
// An entry exactly retention old is expired.
func (e BlockedEntry) Expired(now time.Time, retention time.Duration) bool {
	return e.Age(now) >= retention
}

// BlockedDomains projects entries onto their host strings, in order.
func BlockedDomains(entries []BlockedEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Domain)
	}
	return out
}
