// Package rng provides the counter-based, per-worker random source
// described in SPEC_FULL.md §5 and §9's Design Notes: each worker
// derives its stream from a root seed plus its work-item index, so
// results are reproducible independent of thread count (spec.md §5,
// §8 "Training on the same templates with the same RNG seed produces
// byte-identical hash tables").
package rng

import "math/rand/v2"

// Stream is a single worker's deterministic random source.
type Stream struct {
	r *rand.Rand
}

// NewStream derives a stream from (rootSeed, workIndex). Two streams
// built from the same pair always produce the same sequence.
func NewStream(rootSeed uint64, workIndex int) *Stream {
	src := rand.NewPCG(rootSeed, uint64(workIndex))
	return &Stream{r: rand.New(src)}
}

// IntN returns a pseudo-random integer in [0, n).
func (s *Stream) IntN(n int) int { return s.r.IntN(n) }

// SampleIndices draws k distinct indices from [0, poolSize) without
// replacement, via Fisher-Yates over a local copy of the index array.
// This fixes the off-by-one removal bug noted in spec.md §9: the
// chosen index is swapped with the last *unselected* slot and the
// logical length shrinks by one, so no index is ever dropped or
// duplicated.
func (s *Stream) SampleIndices(poolSize, k int) []int {
	if k > poolSize {
		k = poolSize
	}
	pool := make([]int, poolSize)
	for i := range pool {
		pool[i] = i
	}

	out := make([]int, 0, k)
	remaining := poolSize
	for len(out) < k {
		pick := s.IntN(remaining)
		out = append(out, pool[pick])
		remaining--
		pool[pick] = pool[remaining]
	}
	return out
}
