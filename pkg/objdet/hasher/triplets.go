package hasher

import (
	"objdet/internal/rng"
	"objdet/pkg/objdet/config"
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/model"
)

func linfDistance(a, b model.GridPoint) int {
	dc := abs(a.Col - b.Col)
	dr := abs(a.Row - b.Row)
	if dc > dr {
		return dc
	}
	return dr
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// validTriplet reports whether every pairwise L-infinity distance
// between the triplet's three grid points lies in [1, maxDistance],
// the invariant of spec.md §3.
func validTriplet(t model.Triplet, maxDistance int) bool {
	d12 := linfDistance(t.P1, t.P2)
	d13 := linfDistance(t.P1, t.P3)
	d23 := linfDistance(t.P2, t.P3)
	return inRange(d12, maxDistance) && inRange(d13, maxDistance) && inRange(d23, maxDistance)
}

func inRange(d, max int) bool { return d >= 1 && d <= max }

// GenerateTriplets independently samples cfg.HashTableCount triplets
// over the cfg.ReferencePointsGrid lattice, each satisfying the
// pairwise-distance invariant, per spec.md §4.D step 2. Sampling is
// deterministic given cfg.RootSeed: triplet i is drawn from a stream
// seeded with work index i, so generation is reproducible independent
// of how many tables are requested concurrently downstream.
func GenerateTriplets(cfg config.Config) []model.Triplet {
	triplets := make([]model.Triplet, 0, cfg.HashTableCount)
	for i := 0; i < cfg.HashTableCount; i++ {
		stream := rng.NewStream(cfg.RootSeed, i)
		triplets = append(triplets, sampleTriplet(stream, cfg))
	}
	return triplets
}

// sampleTriplet draws grid points until the pairwise-distance
// invariant holds. The grid is small (default 12x12=144 cells) and the
// acceptance rate for a reasonable maxDistance is high, so a bounded
// rejection loop is used rather than an exact combinatorial sampler.
func sampleTriplet(stream *rng.Stream, cfg config.Config) model.Triplet {
	cols, rows := cfg.ReferencePointsGrid.Width, cfg.ReferencePointsGrid.Height
	maxDist := cfg.MaxTripletDistance
	if maxDist < 1 {
		maxDist = 1
	}

	const maxAttempts = 10000
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t := model.Triplet{
			P1: randomGridPoint(stream, cols, rows),
			P2: randomGridPoint(stream, cols, rows),
			P3: randomGridPoint(stream, cols, rows),
		}
		if validTriplet(t, maxDist) {
			return t
		}
	}
	// Fall back to a deterministic L-shaped triplet if random sampling
	// exhausted its attempt budget, e.g. on a degenerately small grid.
	// It is valid on grids of at least 2x2 cells; on a grid only one
	// cell wide or tall two of its points coincide and it violates the
	// pairwise-distance invariant.
	return model.Triplet{
		P1: model.GridPoint{Col: 0, Row: 0},
		P2: model.GridPoint{Col: min(1, cols-1), Row: 0},
		P3: model.GridPoint{Col: 0, Row: min(1, rows-1)},
	}
}

func randomGridPoint(stream *rng.Stream, cols, rows int) model.GridPoint {
	return model.GridPoint{Col: stream.IntN(cols), Row: stream.IntN(rows)}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MapToRect maps a grid-cell coordinate onto a pixel point within rect,
// placing each grid point at the center of its cell. Used to project
// a triplet (defined once over an abstract grid) onto both a
// template's bounding box at training time and a window's rectangle
// at verification time.
func MapToRect(gp model.GridPoint, grid config.Grid, rect geometry.Rect) geometry.Point {
	cellW := float64(rect.Size.Width) / float64(grid.Width)
	cellH := float64(rect.Size.Height) / float64(grid.Height)
	x := rect.TopLeft.X + int((float64(gp.Col)+0.5)*cellW)
	y := rect.TopLeft.Y + int((float64(gp.Row)+0.5)*cellH)
	return geometry.Point{X: x, Y: y}
}
