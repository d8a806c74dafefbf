package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

// snapshotRecord is the stored form of KeyDomains:
// {"domains":[...],"timestamp":<epoch-ms>}.
type snapshotRecord struct {
	Domains   []string `json:"domains"`
	Timestamp int64    `json:"timestamp"`
}

// blockedRecord is one element of KeyBlockedDomains:
// {"domain":"...","timestamp":<epoch-ms>}.
type blockedRecord struct {
	Domain    string `json:"domain"`
	Timestamp int64  `json:"timestamp"`
}

// EncodeSnapshot serialises a snapshot. Timestamps are truncated to
// milliseconds.
func EncodeSnapshot(s domain.RegistrySnapshot) ([]byte, error) {
	rec := snapshotRecord{Domains: s.Domains, Timestamp: s.FetchedAt.UnixMilli()}
	if rec.Domains == nil {
		rec.Domains = []string{}
	}
	return json.Marshal(rec)
}

// DecodeSnapshot parses a stored snapshot.
func DecodeSnapshot(b []byte) (domain.RegistrySnapshot, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.RegistrySnapshot{}, fmt.Errorf("decode %s: %w", KeyDomains, err)
	}
	if rec.Domains == nil {
		rec.Domains = []string{}
	}
	return domain.RegistrySnapshot{Domains: rec.Domains, FetchedAt: time.UnixMilli(rec.Timestamp).UTC()}, nil
}

// EncodeBlocked serialises the blocklist as a JSON array.
func EncodeBlocked(entries []domain.BlockedEntry) ([]byte, error) {
	recs := make([]blockedRecord, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, blockedRecord{Domain: e.Domain, Timestamp: e.AddedAt.UnixMilli()})
	}
	return json.Marshal(recs)
}

// DecodeBlocked parses a stored blocklist. A nil or empty value decodes to
// an empty list.
func DecodeBlocked(b []byte) ([]domain.BlockedEntry, error) {
	if len(b) == 0 {
		return []domain.BlockedEntry{}, nil
	}
	var recs []blockedRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyBlockedDomains, err)
	}
	out := make([]domain.BlockedEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, domain.BlockedEntry{Domain: r.Domain, AddedAt: time.UnixMilli(r.Timestamp).UTC()})
	}
	return out, nil
}
