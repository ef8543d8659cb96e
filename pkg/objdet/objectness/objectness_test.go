package objectness

import (
	"testing"

	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
)

func TestEdgeMagnitude_FlatImageHasNoEnergy(t *testing.T) {
	g := imaging.NewGrayImage(10, 10)
	for i := range g.Pix {
		g.Pix[i] = 128
	}
	mag := EdgeMagnitude(g)
	if got := EdgelCount(mag, 0.01, 1.0); got != 0 {
		t.Errorf("flat image produced %d edgels, want 0", got)
	}
}

func TestEdgeMagnitude_RampHasUniformInteriorMagnitude(t *testing.T) {
	const w, h = 10, 10
	g := imaging.NewGrayImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, uint8(x*10))
		}
	}
	mag := EdgeMagnitude(g)
	// Interior pixels see a constant Sobel response (raw 80, normalized
	// 80/1020) because the ramp has a fixed slope of 10 per column.
	want := 80.0 / (4 * 255)
	got := mag[5*w+5]
	if diff := got - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("interior ramp magnitude = %v, want %v", got, want)
	}
}

func TestDetect_RejectsZeroDepthWindows(t *testing.T) {
	const w, h = 40, 40
	gray := imaging.NewGrayImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.Set(x, y, uint8((3*x)%256))
		}
	}
	depth := imaging.NewDepthImage(w, h) // all zero -> every window is a hole

	cfg := config.NewConfig()
	minEdgels := model.MinEdgels{Gray: 1} // trivially low threshold
	windows := Detect(gray, depth, minEdgels, geometry.Size{Width: 10, Height: 10}, cfg)
	if len(windows) != 0 {
		t.Fatalf("expected no windows over an all-zero depth scene, got %d", len(windows))
	}
}

func TestDetect_AcceptsHighEnergyPlausibleDepthWindow(t *testing.T) {
	const w, h = 40, 40
	gray := imaging.NewGrayImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray.Set(x, y, uint8((3*x)%256))
		}
	}
	depth := imaging.NewDepthImage(w, h)
	for i := range depth.Pix {
		depth.Pix[i] = 1000
	}

	cfg := config.NewConfig()
	minEdgels := model.MinEdgels{Gray: 1}
	windows := Detect(gray, depth, minEdgels, geometry.Size{Width: 10, Height: 10}, cfg)
	if len(windows) == 0 {
		t.Fatal("expected at least one surviving window over a textured, valid-depth scene")
	}
}
