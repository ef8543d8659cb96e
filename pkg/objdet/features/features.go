// Package features implements the feature primitives of SPEC_FULL.md
// §4.A: surface-normal extraction and octahedral quantization, and
// intensity-gradient orientation extraction and semicircular
// quantization. Relative-depth quantization lives in pkg/objdet/hasher
// because its bin ranges are learned at training time rather than
// fixed, per spec.md §4.D.
package features

import (
	"math"

	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
)

// octahedronFaces are the 8 unit normals used to quantize a surface
// normal into one of 8 bins, grounded on original_source's
// Hashing::quantizeSurfaceNormals octahedron-face scheme.
var octahedronFaces = [8][3]float64{
	{1, 0, 1}, {0, 1, 1}, {-1, 0, 1}, {0, -1, 1},
	{1, 0, -1}, {0, 1, -1}, {-1, 0, -1}, {0, -1, -1},
}

func init() {
	for i := range octahedronFaces {
		f := &octahedronFaces[i]
		n := math.Sqrt(f[0]*f[0] + f[1]*f[1] + f[2]*f[2])
		f[0], f[1], f[2] = f[0]/n, f[1]/n, f[2]/n
	}
}

// SurfaceNormal computes the surface normal at (x,y) on a depth image
// via central differences, per spec.md §4.A. The caller must ensure
// (x,y) is an interior point (see imaging.InteriorPoint) and that the
// 4 neighbours used are non-zero depth; this function does not check
// either, matching the source's border-unsafe contract.
func SurfaceNormal(d *imaging.DepthImage, p geometry.Point) [3]float64 {
	dzdx := (float64(d.At(p.X+1, p.Y)) - float64(d.At(p.X-1, p.Y))) / 2
	dzdy := (float64(d.At(p.X, p.Y+1)) - float64(d.At(p.X, p.Y-1))) / 2
	return normalize([3]float64{-dzdy, -dzdx, 1})
}

func normalize(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

func dot(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

// QuantizeNormal returns the index (0..7) of the octahedron face whose
// unit normal has maximum dot product with n. Ties (equal dot product)
// resolve to the lowest index, per spec.md §4.A.
func QuantizeNormal(n [3]float64) int {
	best, bestDot := 0, math.Inf(-1)
	for i, f := range octahedronFaces {
		d := dot(n, f)
		if d > bestDot {
			bestDot, best = d, i
		}
	}
	return best
}

// GradientOrientation computes the gradient orientation in degrees at
// (x,y) on a grayscale image, via the same central-difference scheme
// as SurfaceNormal, folded into [0,360) by atan2.
func GradientOrientation(g *imaging.GrayImage, p geometry.Point) float64 {
	dx := (float64(g.At(p.X+1, p.Y)) - float64(g.At(p.X-1, p.Y))) / 2
	dy := (float64(g.At(p.X, p.Y+1)) - float64(g.At(p.X, p.Y-1))) / 2
	deg := math.Atan2(dy, dx) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// QuantizeOrientation folds a gradient orientation in degrees into
// [0,180) and buckets it into 5 bins of width 36 degrees, per
// spec.md §4.A.
func QuantizeOrientation(deg float64) int {
	folded := math.Mod(deg, 180)
	if folded < 0 {
		folded += 180
	}
	bin := int(folded / 36)
	if bin > 4 {
		bin = 4
	}
	return bin
}
