package model

import (
	"objdet/pkg/objdet/geometry"
	"objdet/pkg/objdet/imaging"
)

// Template is an immutable training exemplar, per spec.md §3.
// Constructed once at parse time by the (out-of-scope) template
// parsing collaborator and thereafter read-only.
type Template struct {
	ID       int
	ObjectID int

	SrcRGB   *imaging.RGBImage
	SrcGray  *imaging.GrayImage
	SrcHSV   *imaging.HSVImage
	SrcDepth *imaging.DepthImage

	ObjectBB geometry.Rect
	Pose     geometry.Pose
	Diameter float64

	EdgePoints   []geometry.Point
	StablePoints []geometry.Point
	Features     TemplateFeatures
}

// TemplateFeatures is the fixed-size feature vector extracted during
// training (pkg/objdet/matcher), parallel in length to EdgePoints /
// StablePoints respectively, per spec.md §3.
type TemplateFeatures struct {
	OrientationGradient []int     // len == len(EdgePoints), values 0..4
	SurfaceNormal       []int     // len == len(StablePoints), values 0..7
	Depth               []float64 // len == len(StablePoints)
	Color               []imaging.HSV // len == len(StablePoints)
	DepthMedian         int
}

// TemplateGroup is the set of Templates sharing an ObjectID. It holds
// only ids, never back-pointers into the store (Design Notes §9).
type TemplateGroup struct {
	ObjectID    int
	TemplateIDs []int
}

// Store is the in-memory, flat, read-only-after-training collection of
// Templates grouped by object id. The store owns Templates; every
// other structure (hash tables, windows) holds non-owning ids only.
type Store struct {
	templates []*Template
	byID      map[int]*Template
	groups    map[int]*TemplateGroup
}

// NewStore builds a Store from a flat template list, indexing by id
// and grouping by object id.
func NewStore(templates []*Template) *Store {
	s := &Store{
		templates: templates,
		byID:      make(map[int]*Template, len(templates)),
		groups:    make(map[int]*TemplateGroup),
	}
	for _, t := range templates {
		s.byID[t.ID] = t
		g, ok := s.groups[t.ObjectID]
		if !ok {
			g = &TemplateGroup{ObjectID: t.ObjectID}
			s.groups[t.ObjectID] = g
		}
		g.TemplateIDs = append(g.TemplateIDs, t.ID)
	}
	return s
}

// All returns every template in the store, in insertion order.
func (s *Store) All() []*Template { return s.templates }

// Get returns the template with the given id, or nil.
func (s *Store) Get(id int) *Template { return s.byID[id] }

// Len returns the number of templates in the store.
func (s *Store) Len() int { return len(s.templates) }

// MinEdgels is the per-channel minimum edge-pixel count observed
// across all training templates, used by the objectness filter
// (spec.md §4.C). The three channels correspond to the three source
// variants the edge detector is swept over (color, gray, depth-derived
// edges), matching the "per channel-variant" wording of §4.C.
type MinEdgels struct {
	Color, Gray, Depth int
}
