// Package config holds the single immutable configuration record
// shared by every pipeline stage, replacing the reference
// implementation's per-component mutable setters (Design Notes,
// SPEC_FULL.md §9). A Config is built once via NewConfig and never
// mutated afterwards; every component derives its parameters from it.
package config

// Config collects every tunable named in SPEC_FULL.md §6.
type Config struct {
	ReferencePointsGrid          Grid
	HashTableCount                int
	HistogramBinCount              int
	MinVotesPerTemplate            int
	MaxTripletDistance              int
	FeaturePointsCount              int
	ObjectnessStep                  int
	ObjectnessMinThreshold           float64
	ObjectnessMaxThreshold           float64
	ObjectnessMatchThresholdFactor   float64
	CascadePassFraction              float64
	CascadeNeighborhood              int
	EnableColorTest                  bool
	CameraFocalLength                float64 // 0 => Test I is a no-op
	WorkerCount                      int     // 0 => derive from host CPU count
	RootSeed                         uint64

	// Feature-point selection thresholds (spec.md §4.E training step).
	// SobelMaxThreshold and GrayscaleMinThreshold take
	// original_source/objdetect/template_matcher.h's constructor
	// defaults (sobelMaxThreshold=50, grayscaleMinThreshold=50); the
	// edge band uses the normalized 0.01..0.1 Sobel band, not that
	// constructor's Canny thresholds.
	EdgeMinThreshold       float64
	EdgeMaxThreshold       float64
	SobelMaxThreshold      float64
	GrayscaleMinThreshold  uint8
}

// Grid is a width x height lattice size, used for the reference-points
// grid overlaid on a template bounding box.
type Grid struct {
	Width, Height int
}

// Option mutates a Config under construction.
type Option func(*Config)

// NewConfig builds a Config from the defaults in SPEC_FULL.md §6,
// applying opts in order.
func NewConfig(opts ...Option) Config {
	c := Config{
		ReferencePointsGrid:            Grid{Width: 12, Height: 12},
		HashTableCount:                 100,
		HistogramBinCount:              5,
		MinVotesPerTemplate:            3,
		MaxTripletDistance:             5,
		FeaturePointsCount:             100,
		ObjectnessStep:                 5,
		ObjectnessMinThreshold:         0.01,
		ObjectnessMaxThreshold:         0.1,
		ObjectnessMatchThresholdFactor: 0.3,
		CascadePassFraction:            0.6,
		CascadeNeighborhood:            5,
		EnableColorTest:                true,
		RootSeed:                       1,
		EdgeMinThreshold:               0.01,
		EdgeMaxThreshold:               0.1,
		SobelMaxThreshold:              50,
		GrayscaleMinThreshold:          50,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func WithReferencePointsGrid(g Grid) Option { return func(c *Config) { c.ReferencePointsGrid = g } }
func WithHashTableCount(n int) Option       { return func(c *Config) { c.HashTableCount = n } }
func WithHistogramBinCount(n int) Option    { return func(c *Config) { c.HistogramBinCount = n } }
func WithMinVotesPerTemplate(n int) Option  { return func(c *Config) { c.MinVotesPerTemplate = n } }
func WithMaxTripletDistance(n int) Option   { return func(c *Config) { c.MaxTripletDistance = n } }
func WithFeaturePointsCount(n int) Option   { return func(c *Config) { c.FeaturePointsCount = n } }
func WithObjectnessStep(n int) Option       { return func(c *Config) { c.ObjectnessStep = n } }
func WithObjectnessThresholds(min, max float64) Option {
	return func(c *Config) { c.ObjectnessMinThreshold, c.ObjectnessMaxThreshold = min, max }
}
func WithObjectnessMatchThresholdFactor(f float64) Option {
	return func(c *Config) { c.ObjectnessMatchThresholdFactor = f }
}
func WithCascadePassFraction(f float64) Option {
	return func(c *Config) { c.CascadePassFraction = f }
}
func WithCascadeNeighborhood(n int) Option { return func(c *Config) { c.CascadeNeighborhood = n } }
func WithColorTest(enabled bool) Option    { return func(c *Config) { c.EnableColorTest = enabled } }
func WithCameraFocalLength(f float64) Option {
	return func(c *Config) { c.CameraFocalLength = f }
}
func WithWorkerCount(n int) Option { return func(c *Config) { c.WorkerCount = n } }
func WithRootSeed(seed uint64) Option { return func(c *Config) { c.RootSeed = seed } }

// PassThreshold returns the integer vote threshold for a cascade test
// with a feature count of n, per spec.md §4.E (T_pass = 0.6*N, rounded
// so that N=1 still yields a defined threshold of 1).
func (c Config) PassThreshold(n int) int {
	t := int(c.CascadePassFraction * float64(n))
	if t < 1 && n >= 1 {
		t = 1
	}
	return t
}
