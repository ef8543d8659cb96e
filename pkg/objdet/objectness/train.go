package objectness

import (
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
)

// MinEdgels walks every template and returns the minimum edge-pixel
// count observed per channel-variant (gray, color, depth-derived),
// per spec.md §4.C / §6 ("the per-channel minimum edgel triple used by
// objectness"). An empty template list yields zero counts; callers are
// expected to have already rejected an empty training set earlier in
// Train (spec.md §7, EmptyTrainingSet).
func MinEdgels(store *model.Store) model.MinEdgels {
	min := model.MinEdgels{Color: -1, Gray: -1, Depth: -1}
	for _, t := range store.All() {
		grayMag := EdgeMagnitude(t.SrcGray)
		grayCount := EdgelCount(grayMag, 0.01, 0.1)
		if min.Gray < 0 || grayCount < min.Gray {
			min.Gray = grayCount
		}

		colorCount := colorEdgelCount(t)
		if min.Color < 0 || colorCount < min.Color {
			min.Color = colorCount
		}

		depthCount := depthEdgelCount(t)
		if min.Depth < 0 || depthCount < min.Depth {
			min.Depth = depthCount
		}
	}
	if min.Color < 0 {
		min.Color = 0
	}
	if min.Gray < 0 {
		min.Gray = 0
	}
	if min.Depth < 0 {
		min.Depth = 0
	}
	return min
}

// colorEdgelCount approximates color-channel edge energy by running
// the same Sobel magnitude sweep against a luma-weighted projection of
// the RGB source, reusing EdgeMagnitude's grayscale primitive rather
// than duplicating a 3-channel gradient operator.
func colorEdgelCount(t *model.Template) int {
	if t.SrcRGB == nil {
		return 0
	}
	luma := imaging.NewGrayImage(t.SrcRGB.Width, t.SrcRGB.Height)
	for y := 0; y < t.SrcRGB.Height; y++ {
		for x := 0; x < t.SrcRGB.Width; x++ {
			r, g, b := t.SrcRGB.At(x, y)
			luma.Set(x, y, uint8((299*int(r)+587*int(g)+114*int(b))/1000))
		}
	}
	mag := EdgeMagnitude(luma)
	return EdgelCount(mag, 0.01, 0.1)
}

func depthEdgelCount(t *model.Template) int {
	n := 0
	d := t.SrcDepth
	for y := 1; y < d.Height-1; y++ {
		for x := 1; x < d.Width-1; x++ {
			c := d.At(x, y)
			if c == 0 {
				continue
			}
			dx := float64(d.At(x+1, y)) - float64(d.At(x-1, y))
			dy := float64(d.At(x, y+1)) - float64(d.At(x, y-1))
			if dx*dx+dy*dy > 0 {
				n++
			}
		}
	}
	return n
}

