// Package bloom adapts bits-and-blooms filters to the decision interfaces.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-pac/internal/pac/repos/decision"
)

// DefaultFPRate is used when a caller passes a rate outside (0, 1).
const DefaultFPRate = 0.01

type factory struct {
	sizer decision.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() decision.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for capacity keys at the target false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) decision.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &hostFilter{bits: bitsbloom.New(uint(m), uint(k))}
}
