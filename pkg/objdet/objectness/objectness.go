// Package objectness implements the objectness pre-filter of
// SPEC_FULL.md §4.C: a sliding-window sweep over the scene that keeps
// only windows with enough edge energy at a plausible depth, cutting
// the O(W*H) search space down before the (far more expensive) hasher
// and cascade stages run.
package objectness

import (
	"math"

	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
)

// EdgeMagnitude computes a normalized Sobel gradient-magnitude map over
// a grayscale image. Any isotropic edge detector producing equivalent
// edgel counts satisfies spec.md §4.C; Sobel is used here because the
// teacher's cascade (pkg/objdet/matcher) already reaches for a Sobel
// threshold, so the same primitive is reused for edge energy.
func EdgeMagnitude(g *imaging.GrayImage) []float64 {
	mag := make([]float64, g.Width*g.Height)
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			mag[y*g.Width+x] = RawSobelMagnitude(g, x, y) / (4 * 255) // normalize to ~[0,1]
		}
	}
	return mag
}

// RawSobelMagnitude returns the unnormalized Sobel gradient magnitude
// at (x,y), on roughly the same 0..~1400 scale as the source's 8-bit
// pixel range. Shared with pkg/objdet/matcher so both the objectness
// and cascade stages reuse a single gradient operator.
func RawSobelMagnitude(g *imaging.GrayImage, x, y int) float64 {
	gx := sobelX(g, x, y)
	gy := sobelY(g, x, y)
	return math.Sqrt(gx*gx + gy*gy)
}

func sobelX(g *imaging.GrayImage, x, y int) float64 {
	return float64(g.At(x+1, y-1)) + 2*float64(g.At(x+1, y)) + float64(g.At(x+1, y+1)) -
		float64(g.At(x-1, y-1)) - 2*float64(g.At(x-1, y)) - float64(g.At(x-1, y+1))
}

func sobelY(g *imaging.GrayImage, x, y int) float64 {
	return float64(g.At(x-1, y+1)) + 2*float64(g.At(x, y+1)) + float64(g.At(x+1, y+1)) -
		float64(g.At(x-1, y-1)) - 2*float64(g.At(x, y-1)) - float64(g.At(x+1, y-1))
}

// EdgelCount counts pixels in mag whose magnitude falls within
// [minThreshold, maxThreshold], the sweep band of spec.md §4.C.
func EdgelCount(mag []float64, minThreshold, maxThreshold float64) int {
	n := 0
	for _, m := range mag {
		if m >= minThreshold && m <= maxThreshold {
			n++
		}
	}
	return n
}

// Detect slides a window of the given size across the scene at
// cfg.ObjectnessStep, keeping windows whose local edge energy exceeds
// cfg.ObjectnessMatchThresholdFactor * minEdgels, per spec.md §4.C.
func Detect(sceneGray *imaging.GrayImage, sceneDepth *imaging.DepthImage, minEdgels model.MinEdgels, windowSize geometry.Size, cfg config.Config) []*model.Window {
	mag := EdgeMagnitude(sceneGray)
	threshold := cfg.ObjectnessMatchThresholdFactor * float64(minEdgels.Gray)

	var windows []*model.Window
	step := cfg.ObjectnessStep
	if step < 1 {
		step = 1
	}

	for y := 0; y+windowSize.Height <= sceneGray.Height; y += step {
		for x := 0; x+windowSize.Width <= sceneGray.Width; x += step {
			count := 0
			for wy := y; wy < y+windowSize.Height; wy++ {
				rowOff := wy * sceneGray.Width
				for wx := x; wx < x+windowSize.Width; wx++ {
					m := mag[rowOff+wx]
					if m >= cfg.ObjectnessMinThreshold && m <= cfg.ObjectnessMaxThreshold {
						count++
					}
				}
			}
			if float64(count) < threshold {
				continue
			}
			if !hasPlausibleDepth(sceneDepth, x, y, windowSize) {
				continue
			}
			windows = append(windows, &model.Window{
				Rect: geometry.Rect{TopLeft: geometry.Point{X: x, Y: y}, Size: windowSize},
			})
		}
	}
	return windows
}

// hasPlausibleDepth rejects windows whose center pixel has zero depth
// (a "hole"), avoiding wasted hasher/matcher work on empty scene
// regions (the NumericDegenerate case of spec.md §7, caught early).
// Only the center sample is checked: a window with a hole at its center
// is rejected even if other pixels carry depth.
func hasPlausibleDepth(depth *imaging.DepthImage, x, y int, size geometry.Size) bool {
	cx, cy := x+size.Width/2, y+size.Height/2
	if !depth.In(cx, cy) {
		return false
	}
	return depth.At(cx, cy) > 0
}
