package matcher

import (
	"context"
	"math"
	"sort"
	"sync"

	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/features"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
)

// testResult is what each cascade test returns: whether the candidate
// survives, and the partial score to add if it does.
type testResult struct {
	pass       bool
	score      float64
	degenerate bool // true when the test failed for lack of any valid sample, not a mismatch
}

// Match runs the verification cascade of spec.md §4.E over every
// window's surviving hash candidates (already ordered by descending
// vote count, spec.md §4.D) and returns all surviving (window,
// template) matches after non-maximum suppression across overlapping
// windows.
//
// Windows are processed by a bounded worker pool (spec.md §5,
// data-parallel over windows); ctx is polled once per window.
// diag, when non-nil, receives a NumericDegenerate warning for every
// (window, template) cascade run that Test IV dropped for lack of any
// non-hole depth sample, mirroring Train's diagnostics sink.
func Match(ctx context.Context, windows []*model.Window, store *model.Store, scene model.Scene, cfg config.Config, workers int, diag *model.Diagnostics) ([]model.Match, error) {
	if workers < 1 {
		workers = 1
	}
	perWindow := make([][]model.Match, len(windows))
	perWindowWarnings := make([][]model.Warning, len(windows))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, w := range windows {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, model.NewError(model.Cancelled, "matcher: verification cancelled", nil)
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, w *model.Window) {
			defer wg.Done()
			defer func() { <-sem }()

			matches, warnings, err := matchWindow(w, store, scene, cfg)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			perWindow[i] = matches
			perWindowWarnings[i] = warnings
		}(i, w)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	if diag != nil {
		for _, ws := range perWindowWarnings {
			for _, w := range ws {
				diag.WarnNumericDegenerate(w.TemplateID, *w.Window, w.Message)
			}
		}
	}

	var all []model.Match
	for _, ms := range perWindow {
		all = append(all, ms...)
	}
	return suppressOverlaps(sortMatches(all)), nil
}

func sortMatches(matches []model.Match) []model.Match {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].WindowRect, matches[j].WindowRect
		if a.TopLeft.Y != b.TopLeft.Y {
			return a.TopLeft.Y < b.TopLeft.Y
		}
		if a.TopLeft.X != b.TopLeft.X {
			return a.TopLeft.X < b.TopLeft.X
		}
		return matches[i].TemplateID < matches[j].TemplateID
	})
	return matches
}

// matchWindow runs every candidate template of w through the cascade
// in order, keeping only the highest-scoring surviving match for w
// ("Within a window, the highest-scoring Match wins", spec.md §4.E).
func matchWindow(w *model.Window, store *model.Store, scene model.Scene, cfg config.Config) ([]model.Match, []model.Warning, error) {
	var best *model.Match
	var warnings []model.Warning
	rect := w.Rect
	for _, cand := range w.Candidates {
		t := store.Get(cand.TemplateID)
		if t == nil {
			continue
		}
		score, survived, degenerate := runCascade(w.Rect, t, scene, cfg)
		if degenerate {
			warnings = append(warnings, model.Warning{
				Kind:       model.NumericDegenerate,
				TemplateID: t.ID,
				Window:     &rect,
				Message:    "matcher: no non-hole depth sample found near any stable point",
			})
		}
		if !survived {
			continue
		}
		if best == nil || score > best.Score {
			best = &model.Match{WindowRect: w.Rect, TemplateID: t.ID, Score: score}
		}
	}
	if best == nil {
		return nil, warnings, nil
	}
	return []model.Match{*best}, warnings, nil
}

// runCascade runs tests I-V in order against one (window, template)
// pair. A failing test short-circuits the remaining tests (spec.md
// §4.E "Ordering invariant"). It returns the accumulated score,
// whether the candidate survived, and whether a failure was due to
// Test IV finding no valid depth sample at all (a NumericDegenerate
// condition worth a caller warning) rather than an ordinary mismatch.
func runCascade(windowRect geometry.Rect, t *model.Template, scene model.Scene, cfg config.Config) (score float64, pass bool, degenerate bool) {
	n := len(t.StablePoints)
	if len(t.EdgePoints) > n {
		n = len(t.EdgePoints)
	}
	tPass := cfg.PassThreshold(n)

	var total float64

	if r := testObjectSize(windowRect, t, scene, cfg); !r.pass {
		return 0, false, false
	} else {
		total += r.score
	}

	if r := testSurfaceNormal(windowRect, t, scene, cfg, tPass); !r.pass {
		return 0, false, false
	} else {
		total += r.score
	}

	if r := testIntensityGradient(windowRect, t, scene, cfg, tPass); !r.pass {
		return 0, false, false
	} else {
		total += r.score
	}

	if r := testDepthConsistency(windowRect, t, scene, cfg, tPass); !r.pass {
		return 0, false, r.degenerate
	} else {
		total += r.score
	}

	if cfg.EnableColorTest {
		if r := testColor(windowRect, t, scene, cfg, tPass); !r.pass {
			return 0, false, false
		} else {
			total += r.score
		}
	} else {
		total += float64(n) // stubbed always-pass contributes full score, per spec.md §9 open question
	}

	return total, true, false
}

// project maps a template-relative feature point into the scene, using
// the window's top-left as the template's effective origin.
func project(windowRect geometry.Rect, t *model.Template, p geometry.Point) geometry.Point {
	return geometry.Point{
		X: windowRect.TopLeft.X + (p.X - t.ObjectBB.TopLeft.X),
		Y: windowRect.TopLeft.Y + (p.Y - t.ObjectBB.TopLeft.Y),
	}
}

// neighborhood returns every in-bounds point in a (2*radius+1)^2
// window centered on c, clipped to width x height, per spec.md §8's
// boundary requirement that a 5x5 neighborhood near image bounds
// produce valid results without out-of-range sampling.
func neighborhood(c geometry.Point, radius, width, height int) []geometry.Point {
	var pts []geometry.Point
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			x, y := c.X+dx, c.Y+dy
			if x >= 0 && x < width && y >= 0 && y < height {
				pts = append(pts, geometry.Point{X: x, Y: y})
			}
		}
	}
	return pts
}

// testObjectSize is Test I (spec.md §4.E). With no camera focal length
// configured it is a documented no-op that always passes (spec.md §9
// open-question resolution in SPEC_FULL.md).
func testObjectSize(windowRect geometry.Rect, t *model.Template, scene model.Scene, cfg config.Config) testResult {
	n := len(t.StablePoints)
	if cfg.CameraFocalLength <= 0 {
		return testResult{pass: true, score: float64(n)}
	}
	center := windowRect.Center()
	if !scene.Depth.In(center.X, center.Y) {
		return testResult{pass: true, score: float64(n)}
	}
	z := float64(scene.Depth.At(center.X, center.Y))
	if z <= 0 || t.Diameter <= 0 {
		return testResult{pass: true, score: float64(n)}
	}
	expectedPixelSize := cfg.CameraFocalLength * t.Diameter / z
	actualPixelSize := float64(windowRect.Size.Width)
	deviation := math.Abs(expectedPixelSize-actualPixelSize) / actualPixelSize
	const tolerance = 0.5
	if deviation > tolerance {
		return testResult{pass: false}
	}
	return testResult{pass: true, score: float64(n)}
}

// testSurfaceNormal is Test II (spec.md §4.E).
func testSurfaceNormal(windowRect geometry.Rect, t *model.Template, scene model.Scene, cfg config.Config, tPass int) testResult {
	count := 0
	for i, p := range t.StablePoints {
		sp := project(windowRect, t, p)
		want := t.Features.SurfaceNormal[i]
		found := false
		for _, np := range neighborhood(sp, cfg.CascadeNeighborhood/2, scene.Depth.Width, scene.Depth.Height) {
			if !imaging.InteriorPoint(scene.Depth.Width, scene.Depth.Height, np.X, np.Y) {
				continue
			}
			if scene.Depth.At(np.X, np.Y) == 0 {
				continue
			}
			n := features.SurfaceNormal(scene.Depth, np)
			if features.QuantizeNormal(n) == want {
				found = true
				break
			}
		}
		if found {
			count++
		}
	}
	return testResult{pass: count >= tPass, score: float64(count)}
}

// testIntensityGradient is Test III (spec.md §4.E).
func testIntensityGradient(windowRect geometry.Rect, t *model.Template, scene model.Scene, cfg config.Config, tPass int) testResult {
	count := 0
	for i, p := range t.EdgePoints {
		sp := project(windowRect, t, p)
		want := t.Features.OrientationGradient[i]
		found := false
		for _, np := range neighborhood(sp, cfg.CascadeNeighborhood/2, scene.Gray.Width, scene.Gray.Height) {
			if !imaging.InteriorPoint(scene.Gray.Width, scene.Gray.Height, np.X, np.Y) {
				continue
			}
			deg := features.GradientOrientation(scene.Gray, np)
			if features.QuantizeOrientation(deg) == want {
				found = true
				break
			}
		}
		if found {
			count++
		}
	}
	return testResult{pass: count >= tPass, score: float64(count)}
}

// testDepthConsistency is Test IV (spec.md §4.E). For each stable
// point, the first non-hole depth sample found scanning the
// neighborhood row by row from its top-left corner is used, so a single
// dropout pixel doesn't disqualify the point. That sample is not
// necessarily the one nearest the projected point.
func testDepthConsistency(windowRect geometry.Rect, t *model.Template, scene model.Scene, cfg config.Config, tPass int) testResult {
	radius := cfg.CascadeNeighborhood / 2
	samples := make([]float64, 0, len(t.StablePoints))
	present := make([]bool, len(t.StablePoints))
	for i, p := range t.StablePoints {
		sp := project(windowRect, t, p)
		for _, np := range neighborhood(sp, radius, scene.Depth.Width, scene.Depth.Height) {
			if scene.Depth.At(np.X, np.Y) > 0 {
				samples = append(samples, float64(scene.Depth.At(np.X, np.Y)))
				present[i] = true
				break
			}
		}
	}
	if len(samples) == 0 {
		return testResult{pass: false, degenerate: true}
	}
	m := medianF(samples)

	count := 0
	for i, p := range t.StablePoints {
		if !present[i] {
			continue
		}
		sp := project(windowRect, t, p)
		var s float64
		found := false
		for _, np := range neighborhood(sp, radius, scene.Depth.Width, scene.Depth.Height) {
			if scene.Depth.At(np.X, np.Y) > 0 {
				s = float64(scene.Depth.At(np.X, np.Y))
				found = true
				break
			}
		}
		if !found {
			continue
		}
		if math.Abs(s-m) < t.Diameter {
			count++
		}
	}
	return testResult{pass: count >= tPass, score: float64(count)}
}

// testColor is Test V (spec.md §4.E): hue delta (circular) <= 15
// degrees, saturation and value within +-25/255.
func testColor(windowRect geometry.Rect, t *model.Template, scene model.Scene, cfg config.Config, tPass int) testResult {
	if scene.HSV == nil {
		return testResult{pass: true, score: float64(len(t.StablePoints))}
	}
	count := 0
	for i, p := range t.StablePoints {
		want := t.Features.Color[i]
		sp := project(windowRect, t, p)
		found := false
		for _, np := range neighborhood(sp, cfg.CascadeNeighborhood/2, scene.HSV.Width, scene.HSV.Height) {
			got := scene.HSV.At(np.X, np.Y)
			if hueDelta(want.H, got.H) <= 15 &&
				absInt(int(want.S)-int(got.S)) <= 25 &&
				absInt(int(want.V)-int(got.V)) <= 25 {
				found = true
				break
			}
		}
		if found {
			count++
		}
	}
	return testResult{pass: count >= tPass, score: float64(count)}
}

func hueDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func medianF(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// suppressOverlaps applies non-maximum suppression across windows with
// IoU >= 0.5, keeping the highest-scoring match in each cluster, per
// spec.md §4.E.
func suppressOverlaps(matches []model.Match) []model.Match {
	if len(matches) == 0 {
		return matches
	}
	ordered := make([]model.Match, len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	kept := make([]model.Match, 0, len(ordered))
	suppressed := make([]bool, len(ordered))
	for i := range ordered {
		if suppressed[i] {
			continue
		}
		kept = append(kept, ordered[i])
		for j := i + 1; j < len(ordered); j++ {
			if suppressed[j] {
				continue
			}
			if ordered[i].WindowRect.IoU(ordered[j].WindowRect) >= 0.5 {
				suppressed[j] = true
			}
		}
	}
	return sortMatches(kept)
}
