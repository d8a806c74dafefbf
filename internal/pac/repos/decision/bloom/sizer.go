package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-pac/internal/pac/repos/decision"
)

// maxHashes caps k so it fits the uint8 the sizer reports.
const maxHashes = 255

type sizer struct{}

// NewSizer returns a BloomSizer backed by bitsbloom.EstimateParameters. An
// empty capacity is sized as one host and an out-of-range rate falls back to
// DefaultFPRate.
func NewSizer() decision.BloomSizer { return sizer{} }

func (sizer) Size(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = DefaultFPRate
	}
	m, k := bitsbloom.EstimateParameters(uint(n), p)
	if m == 0 {
		m = 1
	}
	switch {
	case k == 0:
		k = 1
	case k > maxHashes:
		k = maxHashes
	}
	return uint64(m), uint8(k)
}
