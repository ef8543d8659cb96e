package config

import "testing"

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()
	if c.ReferencePointsGrid != (Grid{Width: 12, Height: 12}) {
		t.Errorf("default grid = %+v", c.ReferencePointsGrid)
	}
	if c.HashTableCount != 100 {
		t.Errorf("default HashTableCount = %d, want 100", c.HashTableCount)
	}
	if !c.EnableColorTest {
		t.Error("expected EnableColorTest to default true")
	}
	if c.CameraFocalLength != 0 {
		t.Errorf("default CameraFocalLength = %v, want 0 (Test I no-op)", c.CameraFocalLength)
	}
}

func TestNewConfig_OptionsOverrideDefaults(t *testing.T) {
	c := NewConfig(
		WithHashTableCount(50),
		WithColorTest(false),
		WithRootSeed(7),
	)
	if c.HashTableCount != 50 {
		t.Errorf("HashTableCount = %d, want 50", c.HashTableCount)
	}
	if c.EnableColorTest {
		t.Error("expected EnableColorTest overridden to false")
	}
	if c.RootSeed != 7 {
		t.Errorf("RootSeed = %d, want 7", c.RootSeed)
	}
}

func TestPassThreshold(t *testing.T) {
	c := NewConfig(WithCascadePassFraction(0.6))
	cases := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1}, // N=1 must still yield a defined threshold of 1
		{5, 3},
		{10, 6},
	}
	for _, tc := range cases {
		if got := c.PassThreshold(tc.n); got != tc.want {
			t.Errorf("PassThreshold(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}
