package bloom

import (
	"sync"
	"sync/atomic"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// hostFilter is the pre-check in front of the PAC matcher. It is filled once
// per applied configuration and then only read, so lookups take the read lock.
type hostFilter struct {
	mu    sync.RWMutex
	bits  *bitsbloom.BloomFilter
	hosts atomic.Uint64
}

func (f *hostFilter) Add(host string) {
	f.mu.Lock()
	f.bits.AddString(host)
	f.mu.Unlock()
	f.hosts.Add(1)
}

func (f *hostFilter) MightContain(host string) bool {
	f.mu.RLock()
	ok := f.bits.TestString(host)
	f.mu.RUnlock()
	return ok
}

// Len counts Add calls, duplicates included.
func (f *hostFilter) Len() uint64 { return f.hosts.Load() }
