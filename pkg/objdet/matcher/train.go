// Package matcher implements the Template matcher component of
// SPEC_FULL.md §4.E: per-template feature-point selection at training
// time, and the ordered cascade of acceptance tests at verification
// time.
package matcher

import (
	"objdet/internal/rng"
	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/features"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
	"objdet/pkg/objdet/objectness"
)

// ExtractFeatures selects t's edge and stable feature points and
// populates t.EdgePoints, t.StablePoints and t.Features, per spec.md
// §4.E training steps 1-7. workIndex seeds the deterministic sampler
// (spec.md §5: "each worker derives its stream from a root seed +
// work-item index").
func ExtractFeatures(t *model.Template, cfg config.Config, workIndex int) error {
	n := cfg.FeaturePointsCount

	edgePool := edgePool(t.SrcGray, t.ObjectBB, cfg)
	stablePool := stablePool(t.SrcGray, t.SrcDepth, t.ObjectBB, cfg)

	if len(edgePool) <= n || len(stablePool) <= n {
		return model.NewError(model.InsufficientFeatures,
			"matcher: template has too few eligible edge or stable pixels",
			map[string]any{"template_id": t.ID, "edge_pool": len(edgePool), "stable_pool": len(stablePool), "required": n})
	}

	stream := rng.NewStream(cfg.RootSeed, workIndex)

	edgeIdx := stream.SampleIndices(len(edgePool), n)
	edgePoints := make([]geometry.Point, n)
	for i, idx := range edgeIdx {
		edgePoints[i] = edgePool[idx]
	}

	stablePoints, ok := sampleStableNonHole(stream, stablePool, t.SrcDepth, n)
	if !ok {
		return model.NewError(model.InsufficientFeatures,
			"matcher: template has too few non-hole stable pixels",
			map[string]any{"template_id": t.ID, "stable_pool": len(stablePool), "required": n})
	}

	gradBins := make([]int, n)
	for i, p := range edgePoints {
		deg := features.GradientOrientation(t.SrcGray, p)
		gradBins[i] = features.QuantizeOrientation(deg)
	}

	normalBins := make([]int, n)
	depths := make([]float64, n)
	colors := make([]imaging.HSV, n)
	rawDepths := make([]int, n)
	for i, p := range stablePoints {
		normal := features.SurfaceNormal(t.SrcDepth, p)
		normalBins[i] = features.QuantizeNormal(normal)
		d := float64(t.SrcDepth.At(p.X, p.Y))
		depths[i] = d
		rawDepths[i] = int(d)
		if t.SrcHSV != nil {
			colors[i] = t.SrcHSV.At(p.X, p.Y)
		}
	}

	t.EdgePoints = edgePoints
	t.StablePoints = stablePoints
	t.Features = model.TemplateFeatures{
		OrientationGradient: gradBins,
		SurfaceNormal:       normalBins,
		Depth:               depths,
		Color:               colors,
		DepthMedian:         median(rawDepths),
	}
	return nil
}

// edgePool collects every interior pixel of bb whose Sobel gradient
// magnitude falls in the edge-detector sweep band, per spec.md §4.E
// training step 1. Points near the bounding-box border are sampled in
// the larger source coordinate frame (spec.md §4.E note) so central
// differences stay valid; here that means the interior test is against
// the source image, not bb.
func edgePool(gray *imaging.GrayImage, bb geometry.Rect, cfg config.Config) []geometry.Point {
	var pool []geometry.Point
	for y := bb.TopLeft.Y; y < bb.BR().Y; y++ {
		for x := bb.TopLeft.X; x < bb.BR().X; x++ {
			if !imaging.InteriorPoint(gray.Width, gray.Height, x, y) {
				continue
			}
			mag := objectness.RawSobelMagnitude(gray, x, y) / (4 * 255)
			if mag >= cfg.EdgeMinThreshold && mag <= cfg.EdgeMaxThreshold {
				pool = append(pool, geometry.Point{X: x, Y: y})
			}
		}
	}
	return pool
}

// stablePool collects interior pixels where intensity exceeds
// GrayscaleMinThreshold and gradient magnitude is at or below
// SobelMaxThreshold, per spec.md §4.E training step 2. Zero-depth
// ("hole") pixels are filtered later during sampling rather than here,
// matching the spec's "rejecting any sample falling on zero-depth"
// wording (a rejection-sampling step, not a pool-membership filter).
func stablePool(gray *imaging.GrayImage, depth *imaging.DepthImage, bb geometry.Rect, cfg config.Config) []geometry.Point {
	var pool []geometry.Point
	for y := bb.TopLeft.Y; y < bb.BR().Y; y++ {
		for x := bb.TopLeft.X; x < bb.BR().X; x++ {
			if !imaging.InteriorPoint(gray.Width, gray.Height, x, y) || !depth.In(x, y) {
				continue
			}
			if float64(gray.At(x, y)) <= float64(cfg.GrayscaleMinThreshold) {
				continue
			}
			mag := objectness.RawSobelMagnitude(gray, x, y)
			if mag > cfg.SobelMaxThreshold {
				continue
			}
			pool = append(pool, geometry.Point{X: x, Y: y})
		}
	}
	return pool
}

// sampleStableNonHole draws points from pool without replacement,
// skipping any sample that lands on a zero-depth pixel, until n valid
// points are accumulated (spec.md §4.E training step 5). ok is false if
// pool doesn't contain n non-hole points, in which case out is the
// (short) partial result and must not be used: the caller is required
// to treat this as InsufficientFeatures rather than silently accepting
// a template whose feature slices are shorter than n (spec.md §8 "len
// == N" invariant).
func sampleStableNonHole(stream *rng.Stream, pool []geometry.Point, depth *imaging.DepthImage, n int) (out []geometry.Point, ok bool) {
	order := stream.SampleIndices(len(pool), len(pool))
	out = make([]geometry.Point, 0, n)
	for _, idx := range order {
		if len(out) == n {
			break
		}
		p := pool[idx]
		if depth.At(p.X, p.Y) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out, len(out) == n
}

func median(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	insertionSort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func insertionSort(v []int) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}
