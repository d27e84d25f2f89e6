package hits

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCycleHits(t *testing.T) {
	t.Parallel()

	ms := []Measurement{
		{Sector: "1_0_0", Layer: 1, Position: Vec3{1, 0, 0}, Detector: DetectorPixel, Clusters: []int{4}},
		{Sector: "2_0_0", Layer: 2, Position: Vec3{2, 0, 0}, Detector: DetectorStrip, Clusters: []int{7, 9}},
	}
	arena := NewCycleHits(ms, Vec3{})
	require.Len(t, arena, 3)

	v := arena[0]
	assert.True(t, v.Virtual)
	assert.Equal(t, VirtualSector, v.Sector)
	assert.Equal(t, 0, v.Layer)
	assert.Equal(t, -1, v.Measurement)
	assert.Empty(t, v.Keys())

	assert.Equal(t, 1, arena[1].Index)
	assert.Equal(t, 0, arena[1].Measurement)
	assert.Equal(t, 2, arena[2].Index)
	assert.Equal(t, "2_0_0", arena[2].Sector)

	// Cluster slices are copied.
	ms[0].Clusters[0] = 99
	assert.Equal(t, []int{4}, arena[1].Clusters)
}

func TestKeys(t *testing.T) {
	t.Parallel()

	arena := NewCycleHits([]Measurement{
		{Detector: DetectorStrip, Clusters: []int{5, 2}},
		{Detector: DetectorStrip, Clusters: []int{2, 8}},
		{Detector: DetectorPixel},
	}, Vec3{})

	got := KeySet(arena, []int{0, 1, 2, 3})
	want := []Key{
		{Detector: DetectorPixel, Index: 2, Whole: true},
		{Detector: DetectorStrip, Index: 2},
		{Detector: DetectorStrip, Index: 5},
		{Detector: DetectorStrip, Index: 8},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("KeySet mismatch (-want +got):\n%s", diff)
	}
}

func TestKeySetOperations(t *testing.T) {
	t.Parallel()

	k := func(i int) Key { return Key{Detector: DetectorStrip, Index: i} }
	tests := []struct {
		name      string
		a, b      []Key
		intersect bool
		union     int
	}{
		{"disjoint", []Key{k(1), k(3)}, []Key{k(2), k(4)}, false, 4},
		{"shared", []Key{k(1), k(3)}, []Key{k(3), k(4)}, true, 3},
		{"subset", []Key{k(1), k(2), k(3)}, []Key{k(2)}, true, 3},
		{"identical", []Key{k(1), k(2)}, []Key{k(1), k(2)}, true, 2},
		{"empty", nil, []Key{k(2)}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.intersect, Intersects(tt.a, tt.b))
			assert.Equal(t, tt.intersect, Intersects(tt.b, tt.a))
			assert.Equal(t, tt.union, UnionSize(tt.a, tt.b))
		})
	}
}

func TestVec3(t *testing.T) {
	a := Vec3{3, 4, 12}
	if got := a.Mag(); got != 13 {
		t.Errorf("Mag() = %v, want 13", got)
	}
	if got := a.MagXY(); got != 5 {
		t.Errorf("MagXY() = %v, want 5", got)
	}
	if got := a.RZ(); got != (Vec3{X: 5, Y: 12}) {
		t.Errorf("RZ() = %v", got)
	}
	if got := (Vec3{1, 0, 0}).CrossZ(Vec3{0, 1, 0}); got != 1 {
		t.Errorf("CrossZ() = %v, want 1", got)
	}
	if got := a.Sub(a).Mag(); math.Abs(got) > 0 {
		t.Errorf("Sub self = %v", got)
	}
}

func TestParseDetector(t *testing.T) {
	for _, d := range []Detector{DetectorVirtual, DetectorPixel, DetectorStrip} {
		got, err := ParseDetector(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDetector("calorimeter")
	assert.Error(t, err)
}
