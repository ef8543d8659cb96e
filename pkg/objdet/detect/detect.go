// Package detect is the Orchestrator (SPEC_FULL.md §2 component F): it
// drives the pipeline in fixed order -- load (caller-provided) -> train
// hasher + extract min edgels -> on detect, run objectness -> verify
// candidates -> cascade match -- and exposes the two external entry
// points of spec.md §6, Train and Detect.
package detect

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"

	"github.com/google/uuid"
	gopsutilcpu "github.com/shirou/gopsutil/v3/cpu"

	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/hasher"
	"objdet/pkg/objdet/matcher"
	"objdet/pkg/objdet/model"
	"objdet/pkg/objdet/objectness"
)

// Trained bundles the hash-table set and the per-channel min_edgels
// triple, the return value of Train per spec.md §6.
type Trained struct {
	RunID     string
	Store     *model.Store
	Hash      hasher.Trained
	MinEdgels model.MinEdgels
}

// trainedJSON is Trained's persisted shape: a caller's own storage
// collaborator serializes and reloads this so a Trained value survives
// a process restart without the core defining an on-disk format
// itself (spec.md §6's "no on-disk format defined by the core" note).
// Templates are included (not just the hash-table/min_edgels triple)
// because matcher.Match needs each template's extracted Features at
// Detect time; only the cascade-relevant fields survive the round
// trip, the raw src_* image planes are training-time-only and are not
// marshaled.
type trainedJSON struct {
	RunID     string                `json:"run_id"`
	Templates []persistedTemplate   `json:"templates"`
	Tables    []*model.HashTable    `json:"tables"`
	DepthBins hasher.DepthBinRanges `json:"depth_bins"`
	MinEdgels model.MinEdgels       `json:"min_edgels"`
}

// persistedTemplate is the subset of model.Template the cascade
// (pkg/objdet/matcher) actually reads during Detect.
type persistedTemplate struct {
	ID           int                    `json:"id"`
	ObjectID     int                    `json:"object_id"`
	ObjectBB     geometry.Rect          `json:"object_bb"`
	Diameter     float64                `json:"diameter"`
	EdgePoints   []geometry.Point       `json:"edge_points"`
	StablePoints []geometry.Point       `json:"stable_points"`
	Features     model.TemplateFeatures `json:"features"`
}

// MarshalJSON implements the persistence-collaborator convenience
// described above.
func (t Trained) MarshalJSON() ([]byte, error) {
	var templates []persistedTemplate
	if t.Store != nil {
		for _, tpl := range t.Store.All() {
			templates = append(templates, persistedTemplate{
				ID:           tpl.ID,
				ObjectID:     tpl.ObjectID,
				ObjectBB:     tpl.ObjectBB,
				Diameter:     tpl.Diameter,
				EdgePoints:   tpl.EdgePoints,
				StablePoints: tpl.StablePoints,
				Features:     tpl.Features,
			})
		}
	}
	return json.Marshal(trainedJSON{
		RunID:     t.RunID,
		Templates: templates,
		Tables:    t.Hash.Tables,
		DepthBins: t.Hash.DepthBins,
		MinEdgels: t.MinEdgels,
	})
}

// UnmarshalJSON restores a Trained value from its MarshalJSON form.
// The resulting Store's templates carry only the fields Detect reads;
// src_* image planes are left nil, matching the note on trainedJSON.
func (t *Trained) UnmarshalJSON(data []byte) error {
	var aux trainedJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	templates := make([]*model.Template, len(aux.Templates))
	for i, pt := range aux.Templates {
		templates[i] = &model.Template{
			ID:           pt.ID,
			ObjectID:     pt.ObjectID,
			ObjectBB:     pt.ObjectBB,
			Diameter:     pt.Diameter,
			EdgePoints:   pt.EdgePoints,
			StablePoints: pt.StablePoints,
			Features:     pt.Features,
		}
	}

	t.RunID = aux.RunID
	t.Store = model.NewStore(templates)
	t.Hash = hasher.Trained{Tables: aux.Tables, DepthBins: aux.DepthBins}
	t.MinEdgels = aux.MinEdgels
	return nil
}

// workerCount resolves cfg.WorkerCount, falling back to the host's
// logical CPU count the same way internal/cli/ui/ui.go in the teacher
// codebase reports host resources, via gopsutil -- the one domain
// dependency wired for host-aware worker-pool sizing (SPEC_FULL.md §5).
func workerCount(cfg config.Config) int {
	if cfg.WorkerCount > 0 {
		return cfg.WorkerCount
	}
	if counts, err := gopsutilcpu.Counts(true); err == nil && counts > 0 {
		return counts
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// Train consumes an ordered list of templates already containing
// src_*, object_bb, pose, and diameter, and returns the trained hash
// tables and min_edgels triple, per spec.md §6 operation 1.
//
// Per-template feature extraction (matcher.ExtractFeatures) and hash
// training (hasher.Train) both run over the same template store;
// InsufficientFeatures failures are recorded as warnings and that
// template is excluded from the rest of training, per spec.md §7's
// propagation policy.
func Train(ctx context.Context, templates []*model.Template, cfg config.Config) (Trained, model.Diagnostics, error) {
	var diag model.Diagnostics

	if len(templates) == 0 {
		return Trained{}, diag, model.NewError(model.EmptyTrainingSet, "detect: Train called with no templates", nil)
	}

	workers := workerCount(cfg)
	survivors, err := extractAllFeatures(ctx, templates, cfg, workers, &diag)
	if err != nil {
		return Trained{}, diag, err
	}
	if len(survivors) == 0 {
		return Trained{}, diag, model.NewError(model.EmptyTrainingSet,
			"detect: every template failed feature extraction", nil)
	}

	store := model.NewStore(survivors)
	minEdgels := objectness.MinEdgels(store)

	trainedHash, err := hasher.Train(ctx, store, cfg, workers)
	if err != nil {
		return Trained{}, diag, err
	}

	return Trained{
		RunID:     uuid.NewString(),
		Store:     store,
		Hash:      trainedHash,
		MinEdgels: minEdgels,
	}, diag, nil
}

// extractAllFeatures runs matcher.ExtractFeatures over every template
// with a bounded worker pool, collecting templates that succeeded and
// recording InsufficientFeatures warnings for those that didn't
// (spec.md §7: training proceeds with remaining templates if at least
// one succeeds).
func extractAllFeatures(ctx context.Context, templates []*model.Template, cfg config.Config, workers int, diag *model.Diagnostics) ([]*model.Template, error) {
	type outcome struct {
		t   *model.Template
		err error
	}
	outcomes := make([]outcome, len(templates))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, t := range templates {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, model.NewError(model.Cancelled, "detect: training cancelled", nil)
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, t *model.Template) {
			defer wg.Done()
			defer func() { <-sem }()
			err := matcher.ExtractFeatures(t, cfg, i)
			outcomes[i] = outcome{t: t, err: err}
		}(i, t)
	}
	wg.Wait()

	var survivors []*model.Template
	for _, o := range outcomes {
		if o.err != nil {
			diag.WarnInsufficientFeatures(o.t.ID, o.err.Error())
			continue
		}
		survivors = append(survivors, o.t)
	}
	return survivors, nil
}

// Detect runs objectness, hash-verification, and cascade match over
// scene against trained, per spec.md §6 operation 2. Scene depth must
// already be normalized to the same units as template depth.
//
// A scene with no surviving windows returns an empty match list; this
// is not an error (spec.md §7 "user-visible failure" note). The
// returned Diagnostics mirrors Train's: a NumericDegenerate warning per
// (window, template) cascade run that Test IV dropped for lack of any
// valid depth sample, rather than an ordinary feature mismatch.
func Detect(ctx context.Context, scene model.Scene, trained Trained, cfg config.Config) ([]model.Match, model.Diagnostics, error) {
	var diag model.Diagnostics

	if scene.Gray == nil || scene.Depth == nil {
		return nil, diag, model.NewError(model.InvalidInput, "detect: scene is missing required gray or depth planes", nil)
	}

	workers := workerCount(cfg)
	windowSize := dominantTemplateSize(trained.Store)

	windows := objectness.Detect(scene.Gray, scene.Depth, trained.MinEdgels, windowSize, cfg)
	if len(windows) == 0 {
		return nil, diag, nil
	}

	select {
	case <-ctx.Done():
		return nil, diag, model.NewError(model.Cancelled, "detect: verification cancelled", nil)
	default:
	}

	if err := hasher.Verify(ctx, windows, trained.Hash, scene.Depth, cfg, workers); err != nil {
		return nil, diag, err
	}

	var live []*model.Window
	for _, w := range windows {
		if w.HasCandidates() {
			live = append(live, w)
		}
	}
	if len(live) == 0 {
		return nil, diag, nil
	}

	matches, err := matcher.Match(ctx, live, trained.Store, scene, cfg, workers, &diag)
	if err != nil {
		return nil, diag, err
	}
	return matches, diag, nil
}

// dominantTemplateSize picks the bounding-box size of the first
// template, unscaled, as the sliding-window size (a size factor of 1.0
// of template size, spec.md §4.C); no other size factor is applied.
// Callers orchestrating a multi-scale search invoke Detect once per
// scale with a differently-sized template set (spec.md §1 Non-goals:
// pyramid scaling is the caller's concern, not the core's).
func dominantTemplateSize(store *model.Store) geometry.Size {
	templates := store.All()
	if len(templates) == 0 {
		return geometry.Size{}
	}
	return templates[0].ObjectBB.Size
}
