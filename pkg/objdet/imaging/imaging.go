// Package imaging provides strongly-typed, bounds-checked views over
// contiguous pixel buffers, replacing the runtime-polymorphic dense
// matrix abstraction of the reference implementation (see Design Notes
// in SPEC_FULL.md §9) with one concrete type per pixel layout.
package imaging

import "fmt"

// GrayImage is a single-channel 8-bit image, row-major.
type GrayImage struct {
	Width, Height int
	Pix           []uint8
}

// NewGrayImage allocates a zeroed width x height grayscale image.
func NewGrayImage(width, height int) *GrayImage {
	return &GrayImage{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

func (g *GrayImage) idx(x, y int) int { return y*g.Width + x }

// In reports whether (x,y) lies within bounds.
func (g *GrayImage) In(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// At returns the pixel at (x,y); callers must check In first for
// out-of-range coordinates, matching the border-unsafe contract of
// spec.md §4.A.
func (g *GrayImage) At(x, y int) uint8 { return g.Pix[g.idx(x, y)] }

// Set writes the pixel at (x,y).
func (g *GrayImage) Set(x, y int, v uint8) { g.Pix[g.idx(x, y)] = v }

// RGBImage is a 3-channel 8-bit image, row-major, interleaved R,G,B.
type RGBImage struct {
	Width, Height int
	Pix           []uint8 // len = Width*Height*3
}

func NewRGBImage(width, height int) *RGBImage {
	return &RGBImage{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

func (r *RGBImage) In(x, y int) bool { return x >= 0 && x < r.Width && y >= 0 && y < r.Height }

func (r *RGBImage) At(x, y int) (rr, g, b uint8) {
	i := (y*r.Width + x) * 3
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

func (r *RGBImage) Set(x, y int, rr, g, b uint8) {
	i := (y*r.Width + x) * 3
	r.Pix[i], r.Pix[i+1], r.Pix[i+2] = rr, g, b
}

// HSV is a single HSV sample. H in [0,360), S and V in [0,255].
type HSV struct {
	H float64
	S, V uint8
}

// HSVImage is a derived HSV view of an RGB image, stored in its own
// buffer so templates can carry a precomputed HSV plane.
type HSVImage struct {
	Width, Height int
	Pix           []HSV
}

func NewHSVImage(width, height int) *HSVImage {
	return &HSVImage{Width: width, Height: height, Pix: make([]HSV, width*height)}
}

func (h *HSVImage) In(x, y int) bool { return x >= 0 && x < h.Width && y >= 0 && y < h.Height }
func (h *HSVImage) At(x, y int) HSV  { return h.Pix[y*h.Width+x] }
func (h *HSVImage) Set(x, y int, v HSV) { h.Pix[y*h.Width+x] = v }

// RGBToHSV derives an HSVImage from an RGBImage.
func RGBToHSV(src *RGBImage) *HSVImage {
	out := NewHSVImage(src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			r, g, b := src.At(x, y)
			out.Set(x, y, rgbToHSV(r, g, b))
		}
	}
	return out
}

func rgbToHSV(r, g, b uint8) HSV {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := maxf(rf, gf, bf)
	min := minf(rf, gf, bf)
	delta := max - min

	var h float64
	switch {
	case delta == 0:
		h = 0
	case max == rf:
		h = 60 * (((gf - bf) / delta))
	case max == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if max > 0 {
		s = delta / max
	}
	return HSV{H: h, S: uint8(s * 255), V: uint8(max * 255)}
}

func maxf(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minf(vs ...float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// DepthImage is a single-channel 32-bit float depth image, in whatever
// normalized unit the caller's scene/template data uses. A value of 0
// denotes a "hole" (no depth sample), per spec.md §4.A.
type DepthImage struct {
	Width, Height int
	Pix           []float32
}

func NewDepthImage(width, height int) *DepthImage {
	return &DepthImage{Width: width, Height: height, Pix: make([]float32, width*height)}
}

func (d *DepthImage) In(x, y int) bool { return x >= 0 && x < d.Width && y >= 0 && y < d.Height }
func (d *DepthImage) At(x, y int) float32 { return d.Pix[y*d.Width+x] }
func (d *DepthImage) Set(x, y int, v float32) { d.Pix[y*d.Width+x] = v }

// InteriorPoint reports whether (x,y) has all four central-difference
// neighbours in bounds, i.e. is not on the 1-pixel border.
func InteriorPoint(width, height, x, y int) bool {
	return x > 0 && x < width-1 && y > 0 && y < height-1
}

// ErrOutOfBounds describes a central-difference read at or past the
// image border. No function in this module returns it; the sampling
// code checks InteriorPoint before reading instead.
type ErrOutOfBounds struct {
	X, Y, Width, Height int
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("imaging: point (%d,%d) is outside the 1px-safe interior of a %dx%d image", e.X, e.Y, e.Width, e.Height)
}
