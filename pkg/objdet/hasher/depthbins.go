package hasher

import "sort"

// DepthBinRanges is the learned, adaptive quantizer for relative-depth
// values, per spec.md §4.D step 1. It partitions the observed value
// range into histogramBinCount equal-mass (quantile) intervals rather
// than fixed-width bins, because depth differences are heavily
// non-uniform (spec.md §4.D rationale).
//
// Boundaries holds len(ranges)-1 interior cut points; the first and
// last bins are open-ended so the ranges cover (-inf, +inf) without
// gap or overlap (spec.md §8 invariant).
type DepthBinRanges struct {
	Boundaries []float64
}

// CalibrateDepthBins computes quantile bin boundaries for observed
// values so that each of binCount bins contains an (approximately)
// equal share of the population.
func CalibrateDepthBins(observed []float64, binCount int) DepthBinRanges {
	if len(observed) == 0 || binCount <= 1 {
		return DepthBinRanges{}
	}

	sorted := make([]float64, len(observed))
	copy(sorted, observed)
	sort.Float64s(sorted)

	boundaries := make([]float64, 0, binCount-1)
	for i := 1; i < binCount; i++ {
		pos := float64(i) * float64(len(sorted)) / float64(binCount)
		idx := int(pos)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		boundaries = append(boundaries, sorted[idx])
	}
	return DepthBinRanges{Boundaries: boundaries}
}

// Quantize returns the bin index (0..len(Boundaries)) for value v.
func (r DepthBinRanges) Quantize(v float64) int {
	bin := 0
	for _, b := range r.Boundaries {
		if v < b {
			break
		}
		bin++
	}
	return bin
}

// BinCount returns the number of bins this quantizer produces.
func (r DepthBinRanges) BinCount() int { return len(r.Boundaries) + 1 }
