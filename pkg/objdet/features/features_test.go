package features

import (
	"testing"

	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
)

func TestQuantizeNormal_FlatSurfaceTiesToLowestIndex(t *testing.T) {
	// A flat surface (dzdx=dzdy=0) produces n=(0,0,1), which is
	// equidistant from the four "top" octahedron faces (indices 0-3).
	// The tie must resolve to the lowest index.
	if got := QuantizeNormal([3]float64{0, 0, 1}); got != 0 {
		t.Errorf("QuantizeNormal((0,0,1)) = %d, want 0", got)
	}
}

func TestQuantizeNormal_ExactFaceMatch(t *testing.T) {
	for i, f := range octahedronFaces {
		if got := QuantizeNormal(f); got != i {
			t.Errorf("QuantizeNormal(face %d) = %d, want %d", i, got, i)
		}
	}
}

func TestQuantizeOrientation_Boundaries(t *testing.T) {
	cases := []struct {
		deg  float64
		want int
	}{
		{0, 0},
		{35.999, 0},
		{36, 1},
		{179.999, 4},
		{180, 0},   // folds back to 0
		{-36, 4},   // folds to 144, bin 4
		{360 + 10, 0},
	}
	for _, c := range cases {
		if got := QuantizeOrientation(c.deg); got != c.want {
			t.Errorf("QuantizeOrientation(%v) = %d, want %d", c.deg, got, c.want)
		}
	}
}

func TestSurfaceNormal_FlatPlaneIsUpFacing(t *testing.T) {
	d := imaging.NewDepthImage(5, 5)
	for i := range d.Pix {
		d.Pix[i] = 1000
	}
	n := SurfaceNormal(d, geometry.Point{X: 2, Y: 2})
	if n[0] != 0 || n[1] != 0 || n[2] != 1 {
		t.Errorf("SurfaceNormal on flat plane = %v, want (0,0,1)", n)
	}
}

func TestGradientOrientation_HorizontalRamp(t *testing.T) {
	g := imaging.NewGrayImage(5, 5)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			g.Set(x, y, uint8(x*10))
		}
	}
	// Intensity increases purely along +x, so the gradient points
	// along +x: orientation 0 degrees.
	deg := GradientOrientation(g, geometry.Point{X: 2, Y: 2})
	if deg != 0 {
		t.Errorf("GradientOrientation on a horizontal ramp = %v, want 0", deg)
	}
}
