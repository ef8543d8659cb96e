// Package hasher implements the Hasher component of SPEC_FULL.md §4.D:
// training populates per-triplet hash tables from template triplet
// signatures; verification looks up each window's triplet signature
// and accumulates per-template votes.
package hasher

import (
	"context"
	"sync"

	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/features"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
	"objdet/pkg/objdet/model"
)

// Trained is the output of Train: one table per generated triplet plus
// the learned depth-bin quantizer shared by all of them.
type Trained struct {
	Tables     []*model.HashTable
	DepthBins  DepthBinRanges
}

// pointSample is a (depth, normal) pair sampled at one triplet vertex.
type pointSample struct {
	ok     bool
	depth  float64
	normal [3]float64
}

func sampleDepth(d *imaging.DepthImage, p geometry.Point) pointSample {
	if !imaging.InteriorPoint(d.Width, d.Height, p.X, p.Y) {
		return pointSample{}
	}
	z := d.At(p.X, p.Y)
	if z == 0 {
		return pointSample{}
	}
	n := features.SurfaceNormal(d, p)
	return pointSample{ok: true, depth: float64(z), normal: n}
}

// tripletSignature samples depth+normal at the three points the
// triplet maps to within rect on depth image d, returning ok=false if
// any point is border-unsafe or lands on a zero-depth ("hole") pixel
// (spec.md §4.D "Failure modes").
func tripletSignature(d *imaging.DepthImage, triplet model.Triplet, grid config.Grid, rect geometry.Rect) (p1, p2, p3 pointSample, ok bool) {
	pt1 := MapToRect(triplet.P1, grid, rect)
	pt2 := MapToRect(triplet.P2, grid, rect)
	pt3 := MapToRect(triplet.P3, grid, rect)
	p1 = sampleDepth(d, pt1)
	p2 = sampleDepth(d, pt2)
	p3 = sampleDepth(d, pt3)
	ok = p1.ok && p2.ok && p3.ok
	return
}

func buildKey(p1, p2, p3 pointSample, bins DepthBinRanges) (model.HashKey, bool) {
	d1 := bins.Quantize(p2.depth - p1.depth)
	d2 := bins.Quantize(p3.depth - p1.depth)
	n1 := features.QuantizeNormal(p1.normal)
	n2 := features.QuantizeNormal(p2.normal)
	n3 := features.QuantizeNormal(p3.normal)
	key := model.HashKey{D1: d1, D2: d2, N1: n1, N2: n2, N3: n3}
	return key, key.Valid()
}

// Train builds the hash-table set from store's templates, per the
// three-step procedure of spec.md §4.D: triplet generation, bin-range
// calibration, and per-template insertion.
//
// Template iteration is data-parallel (spec.md §5): a bounded worker
// pool processes disjoint slices of the template list, and ctx is
// polled once per template so a cancellation fires promptly.
func Train(ctx context.Context, store *model.Store, cfg config.Config, workers int) (Trained, error) {
	if store.Len() == 0 {
		return Trained{}, model.NewError(model.EmptyTrainingSet, "hasher: no templates to train on", nil)
	}

	triplets := GenerateTriplets(cfg)
	tables := make([]*model.HashTable, len(triplets))
	for i, t := range triplets {
		tables[i] = model.NewHashTable(t)
	}

	observed, err := calibrationPass(ctx, store, triplets, cfg, workers)
	if err != nil {
		return Trained{}, err
	}
	bins := CalibrateDepthBins(observed, cfg.HistogramBinCount)

	if err := insertionPass(ctx, store, tables, triplets, bins, cfg, workers); err != nil {
		return Trained{}, err
	}

	return Trained{Tables: tables, DepthBins: bins}, nil
}

// calibrationPass walks every template/triplet pair collecting raw
// relative-depth observations for quantile bin calibration (spec.md
// §4.D step 1).
func calibrationPass(ctx context.Context, store *model.Store, triplets []model.Triplet, cfg config.Config, workers int) ([]float64, error) {
	templates := store.All()
	type partial struct{ values []float64 }
	results := make([]partial, len(templates))

	err := forEachTemplate(ctx, templates, workers, func(i int, t *model.Template) error {
		var local []float64
		for _, triplet := range triplets {
			p1, p2, p3, ok := tripletSignature(t.SrcDepth, triplet, cfg.ReferencePointsGrid, t.ObjectBB)
			if !ok {
				continue
			}
			local = append(local, p2.depth-p1.depth, p3.depth-p1.depth)
		}
		results[i] = partial{values: local}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var all []float64
	for _, r := range results {
		all = append(all, r.values...)
	}
	return all, nil
}

// insertionPass inserts each template's id into every table whose
// triplet produces a valid key on that template (spec.md §4.D step 3).
func insertionPass(ctx context.Context, store *model.Store, tables []*model.HashTable, triplets []model.Triplet, bins DepthBinRanges, cfg config.Config, workers int) error {
	templates := store.All()
	return forEachTemplate(ctx, templates, workers, func(i int, t *model.Template) error {
		for idx, triplet := range triplets {
			p1, p2, p3, ok := tripletSignature(t.SrcDepth, triplet, cfg.ReferencePointsGrid, t.ObjectBB)
			if !ok {
				continue
			}
			key, ok := buildKey(p1, p2, p3, bins)
			if !ok {
				continue
			}
			tables[idx].Insert(key, t.ID)
		}
		return nil
	})
}

// forEachTemplate runs fn over every template using a bounded worker
// pool (buffered semaphore + WaitGroup), grounded on the teacher's
// internal/discovery.DiscoverServers pattern. ctx is polled before each
// item is dispatched so cancellation aborts promptly without starting
// new work (spec.md §5).
func forEachTemplate(ctx context.Context, templates []*model.Template, workers int, fn func(i int, t *model.Template) error) error {
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, t := range templates {
		select {
		case <-ctx.Done():
			wg.Wait()
			return model.NewError(model.Cancelled, "hasher: training cancelled", nil)
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, t *model.Template) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(i, t); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i, t)
	}
	wg.Wait()
	return firstErr
}

// Verify polls every hash table for each window, mapping the table's
// triplet onto the window and looking up the scene's triplet signature
// at the window's location, per spec.md §4.D verification. Surviving
// candidates (votes >= cfg.MinVotesPerTemplate) are left on each
// window, ordered by votes descending then template id ascending; a
// window with no surviving candidate is left with an empty candidate
// list (dropped downstream, not here, since dropping is a detect-level
// concern).
func Verify(ctx context.Context, windows []*model.Window, trained Trained, sceneDepth *imaging.DepthImage, cfg config.Config, workers int) error {
	return forEachWindow(ctx, windows, workers, func(_ int, w *model.Window) error {
		for _, table := range trained.Tables {
			p1, p2, p3, ok := tripletSignature(sceneDepth, table.Triplet, cfg.ReferencePointsGrid, w.Rect)
			if !ok {
				continue // NumericDegenerate at this triplet: no vote, not an error (spec.md §4.D)
			}
			key, ok := buildKey(p1, p2, p3, trained.DepthBins)
			if !ok {
				continue
			}
			for _, id := range table.Lookup(key) {
				w.AddVote(id)
			}
		}
		w.Prune(cfg.MinVotesPerTemplate)
		return nil
	})
}

// forEachWindow mirrors forEachTemplate's worker-pool shape for the
// verification stage's data-parallel-over-windows structure.
func forEachWindow(ctx context.Context, windows []*model.Window, workers int, fn func(i int, w *model.Window) error) error {
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, w := range windows {
		select {
		case <-ctx.Done():
			wg.Wait()
			return model.NewError(model.Cancelled, "hasher: verification cancelled", nil)
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, w *model.Window) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(i, w); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i, w)
	}
	wg.Wait()
	return firstErr
}
