package detect

import (
	"context"
	"encoding/json"
	"testing"

	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
)

// rampGray renders a one-dimensional intensity ramp with slope 6 per
// column -- a raw Sobel magnitude of 48 (normalized ~0.047) lands
// inside the default objectness/edge-detector band [0.01, 0.1] and at
// or below the stable-pool Sobel ceiling of 50 everywhere, giving the
// synthetic scene abundant, predictable edge and stable feature pools
// without needing a real renderer.
func rampGray(w, h int) *imaging.GrayImage {
	g := imaging.NewGrayImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, uint8((6*x)%256))
		}
	}
	return g
}

func flatGray(w, h int, v uint8) *imaging.GrayImage {
	g := imaging.NewGrayImage(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func flatDepth(w, h int, v float32) *imaging.DepthImage {
	d := imaging.NewDepthImage(w, h)
	for i := range d.Pix {
		d.Pix[i] = v
	}
	return d
}

func rgbFromGray(g *imaging.GrayImage) *imaging.RGBImage {
	r := imaging.NewRGBImage(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			r.Set(x, y, v, v, v)
		}
	}
	return r
}

// buildTemplate renders a small, tight-crop template whose whole
// source canvas follows the ramp pattern, flat constant depth, and a
// 1px safety margin around the bounding box for central differences.
func buildTemplate(id int) *model.Template {
	const w, h = 42, 42
	gray := rampGray(w, h)
	depth := flatDepth(w, h, 1000)
	rgb := rgbFromGray(gray)
	hsv := imaging.RGBToHSV(rgb)

	return &model.Template{
		ID:       id,
		ObjectID: id,
		SrcRGB:   rgb,
		SrcGray:  gray,
		SrcHSV:   hsv,
		SrcDepth: depth,
		ObjectBB: geometry.Rect{TopLeft: geometry.Point{X: 1, Y: 1}, Size: geometry.Size{Width: 40, Height: 40}},
		Pose:     geometry.Pose{},
		Diameter: 50,
	}
}

// buildScene renders a 100x100 background and pastes the template's
// 42x42 source canvas at offset (19,19), so the template's bounding
// box (which starts at (1,1) within its own canvas) lines up with
// scene point (20,20) -- a multiple of the default objectness stride,
// so a sliding window lands on it exactly.
func buildScene(t *model.Template) model.Scene {
	return buildScenePasted(t, 19, 19)
}

// buildScenePasted is buildScene parameterized on the paste offset, so
// callers can place the template's rendering anywhere on the 100x100
// canvas (used to exercise translation invariance).
func buildScenePasted(t *model.Template, pasteX, pasteY int) model.Scene {
	const w, h = 100, 100
	gray := flatGray(w, h, 30)
	depth := flatDepth(w, h, 500)

	for y := 0; y < t.SrcGray.Height; y++ {
		for x := 0; x < t.SrcGray.Width; x++ {
			gray.Set(pasteX+x, pasteY+y, t.SrcGray.At(x, y))
			depth.Set(pasteX+x, pasteY+y, t.SrcDepth.At(x, y))
		}
	}

	rgb := rgbFromGray(gray)
	hsv := imaging.RGBToHSV(rgb)
	return model.Scene{RGB: rgb, Gray: gray, HSV: hsv, Depth: depth}
}

// buildTemplateWithDepth is buildTemplate parameterized on the depth
// plane, so callers can give two templates clearly different surface
// normal signatures while keeping the same gray/RGB pattern.
func buildTemplateWithDepth(id int, depth *imaging.DepthImage) *model.Template {
	tpl := buildTemplate(id)
	tpl.SrcDepth = depth
	return tpl
}

// slopedDepth renders a depth plane that increases linearly with y,
// giving a surface normal tilted well away from the flat plane's
// straight-at-camera normal (bin 0): a strong, clearly distinguishable
// normal signature from buildTemplate's flat depth.
func slopedDepth(w, h int, base, slope float32) *imaging.DepthImage {
	d := imaging.NewDepthImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d.Set(x, y, base+slope*float32(y))
		}
	}
	return d
}

func testConfig() config.Config {
	return config.NewConfig(
		config.WithFeaturePointsCount(24),
		config.WithHashTableCount(24),
		config.WithMinVotesPerTemplate(3),
		config.WithRootSeed(42),
	)
}

func TestTrainAndDetect_SingleTemplateIdentity(t *testing.T) {
	tpl := buildTemplate(1)
	scene := buildScene(tpl)
	cfg := testConfig()

	trained, diag, err := Train(context.Background(), []*model.Template{tpl}, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(diag.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", diag.Warnings)
	}

	matches, _, err := Detect(context.Background(), scene, trained, cfg)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match for the pasted template region")
	}
	for _, m := range matches {
		if m.TemplateID != tpl.ID {
			t.Errorf("unexpected template id %d in match %+v", m.TemplateID, m)
		}
	}
}

// TestDetect_TranslationInvariance is scenario 2 (spec.md §8): the same
// template rendering, translated by (+30,+15) relative to
// TestTrainAndDetect_SingleTemplateIdentity, must still produce matches
// for the same template only, one of them at the baseline's
// highest-scoring window shifted by (+30,+15).
func TestDetect_TranslationInvariance(t *testing.T) {
	tpl := buildTemplate(1)
	cfg := testConfig()

	trained, _, err := Train(context.Background(), []*model.Template{tpl}, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	baseline := buildScenePasted(tpl, 19, 19)
	baseMatches, _, err := Detect(context.Background(), baseline, trained, cfg)
	if err != nil {
		t.Fatalf("Detect (baseline): %v", err)
	}
	if len(baseMatches) == 0 {
		t.Fatal("expected at least one baseline match")
	}

	translated := buildScenePasted(tpl, 19+30, 19+15)
	matches, _, err := Detect(context.Background(), translated, trained, cfg)
	if err != nil {
		t.Fatalf("Detect (translated): %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match for the translated rendering")
	}
	for _, m := range matches {
		if m.TemplateID != tpl.ID {
			t.Errorf("unexpected template id %d in match %+v", m.TemplateID, m)
		}
	}

	best := baseMatches[0]
	for _, m := range baseMatches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	wantX, wantY := best.WindowRect.TopLeft.X+30, best.WindowRect.TopLeft.Y+15
	found := false
	for _, m := range matches {
		if m.WindowRect.TopLeft.X == wantX && m.WindowRect.TopLeft.Y == wantY {
			found = true
		}
	}
	if !found {
		t.Errorf("no match window at the expected translated offset (%d,%d), got %+v", wantX, wantY, matches)
	}
}

// TestDetect_TwoTemplateDisambiguation is scenario 4 (spec.md §8):
// training on two templates with clearly different surface-normal
// signatures (flat vs. steeply sloped depth) and presenting a scene
// containing only one of them must resolve to that template alone.
func TestDetect_TwoTemplateDisambiguation(t *testing.T) {
	a := buildTemplate(1) // flat depth plane
	b := buildTemplateWithDepth(2, slopedDepth(42, 42, 1000, 50))
	cfg := testConfig()

	trained, diag, err := Train(context.Background(), []*model.Template{a, b}, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(diag.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", diag.Warnings)
	}

	scene := buildScene(a)
	matches, _, err := Detect(context.Background(), scene, trained, cfg)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match for the scene containing template A")
	}
	for _, m := range matches {
		if m.TemplateID != a.ID {
			t.Errorf("expected every match to resolve to template A (id %d), got template id %d in %+v", a.ID, m.TemplateID, m)
		}
	}
}

func TestDetect_NegativeScene(t *testing.T) {
	tpl := buildTemplate(1)
	cfg := testConfig()

	trained, _, err := Train(context.Background(), []*model.Template{tpl}, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	const w, h = 80, 80
	scene := model.Scene{
		RGB:   imaging.NewRGBImage(w, h),
		Gray:  flatGray(w, h, 10),
		HSV:   imaging.NewHSVImage(w, h),
		Depth: imaging.NewDepthImage(w, h), // all zero depth
	}

	matches, _, err := Detect(context.Background(), scene, trained, cfg)
	if err != nil {
		t.Fatalf("Detect on a negative scene returned an error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches on a blank/zero-depth scene, got %d", len(matches))
	}
}

// TestTrained_JSONRoundTrip exercises the persistence-collaborator
// convenience: a Trained value serialized and reloaded must still
// drive Detect to the same result as the original.
func TestTrained_JSONRoundTrip(t *testing.T) {
	tpl := buildTemplate(1)
	scene := buildScene(tpl)
	cfg := testConfig()

	trained, _, err := Train(context.Background(), []*model.Template{tpl}, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	data, err := json.Marshal(trained)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var reloaded Trained
	if err := json.Unmarshal(data, &reloaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if reloaded.RunID != trained.RunID {
		t.Errorf("RunID = %q, want %q", reloaded.RunID, trained.RunID)
	}

	matches, _, err := Detect(context.Background(), scene, reloaded, cfg)
	if err != nil {
		t.Fatalf("Detect (reloaded): %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match after reloading a persisted Trained value")
	}
	for _, m := range matches {
		if m.TemplateID != tpl.ID {
			t.Errorf("unexpected template id %d in match %+v", m.TemplateID, m)
		}
	}
}

func TestTrain_EmptyTrainingSet(t *testing.T) {
	_, _, err := Train(context.Background(), nil, testConfig())
	if !model.IsKind(err, model.EmptyTrainingSet) {
		t.Fatalf("expected EmptyTrainingSet, got %v", err)
	}
}

func TestDetect_HashVoteCutoffReturnsEmpty(t *testing.T) {
	tpl := buildTemplate(1)
	scene := buildScene(tpl)
	cfg := testConfig()
	cfg = config.NewConfig(
		config.WithFeaturePointsCount(cfg.FeaturePointsCount),
		config.WithHashTableCount(cfg.HashTableCount),
		config.WithRootSeed(cfg.RootSeed),
		config.WithMinVotesPerTemplate(cfg.HashTableCount+1), // larger than the number of tables
	)

	trained, _, err := Train(context.Background(), []*model.Template{tpl}, cfg)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	matches, _, err := Detect(context.Background(), scene, trained, cfg)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches when min votes exceeds table count, got %d", len(matches))
	}
}

func TestTrain_CancelledMidTrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tpl := buildTemplate(1)
	_, _, err := Train(ctx, []*model.Template{tpl}, testConfig())
	if !model.IsKind(err, model.Cancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
}
