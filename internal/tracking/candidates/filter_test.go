package candidates

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackfinder/internal/testutil"
	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/fit"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
)

type stubFitter struct {
	prob float64
	err  error
}

func (s stubFitter) Fit([]hits.Hit) (fit.Result, error) {
	return fit.Result{Probability: s.prob}, s.err
}

var geo = filters.Geometry{BField: 1.5}

// arcCandidate places a four-layer arc in an arena and returns the
// candidate covering it down to the virtual hit.
func arcCandidate(m *sectors.Map, arc testutil.Arc) (*Candidate, *sectors.Index) {
	arena := hits.NewCycleHits(arc.Measurements(4, sectors.LayerSectorID), hits.Vec3{})
	idx := sectors.NewIndex(m, arena, 4)
	c := &Candidate{Arena: arena, Hits: []int{1, 2, 3, 4, 0}, Alive: true}
	c.Keys = hits.KeySet(arena, c.Hits)
	return c, idx
}

func TestFilterKeepsSmoothArc(t *testing.T) {
	t.Parallel()

	m := sectors.NewLayerChainMap("chain", 4, sectors.UniformCutoffs(filters.Cutoff{Max: 1e-6},
		filters.DeltaPT, filters.DeltaDistance2IP))
	c, idx := arcCandidate(m, testutil.Arc{Radius: 80, Step: 0.1, DZ: 1})

	st := Filter(idx, []*Candidate{c}, FilterConfig{
		TrackFilters: []filters.Kind{filters.ZigZagXY, filters.DeltaPT, filters.DeltaDistance2IP, filters.ZigZagRZ},
		Fitter:       fit.CircleFitter{},
		Geometry:     geo,
	}, nil)

	assert.Equal(t, 1, st.Survived)
	require.True(t, c.Alive, c.Rejection)
	assert.Equal(t, []int{1, 2, 3, 4}, c.Hits, "virtual hit removed")
	assert.InDelta(t, 80, c.Radius, 1e-3)
	assert.InDelta(t, 0.003*1.5*80, c.PT, 1e-3)
	assert.Equal(t, 1, c.Charge)
	assert.Greater(t, c.Quality, 0.99)
}

func TestFilterDeltaPT(t *testing.T) {
	t.Parallel()

	m := sectors.NewLayerChainMap("chain", 4, sectors.UniformCutoffs(filters.Cutoff{Max: 1e-6}, filters.DeltaPT))
	c, idx := arcCandidate(m, testutil.Arc{Radius: 80, Step: 0.1, DZ: 1})
	c.Arena[1].Position.X += 0.5

	o := NewOwnership()
	o.Add(c)
	st := Filter(idx, []*Candidate{c}, FilterConfig{TrackFilters: []filters.Kind{filters.DeltaPT}, Geometry: geo}, o)

	assert.False(t, c.Alive)
	assert.Equal(t, RejectDeltaPT, c.Rejection)
	assert.Equal(t, 1, st.Rejected[RejectDeltaPT])
	for _, k := range c.Keys {
		assert.Zero(t, o.LiveCount(k), "rejection releases %v", k)
	}
}

func TestFilterInconclusiveWindow(t *testing.T) {
	t.Parallel()

	m := sectors.NewLayerChainMap("chain", 4, sectors.UniformCutoffs(wide, filters.DeltaPT))
	arena := hits.NewCycleHits([]hits.Measurement{
		{Sector: "4_0_0", Layer: 4, Position: hits.Vec3{X: 4}},
		{Sector: "3_0_0", Layer: 3, Position: hits.Vec3{X: 3}},
		{Sector: "2_0_0", Layer: 2, Position: hits.Vec3{X: 2}},
		{Sector: "1_0_0", Layer: 1, Position: hits.Vec3{X: 1}},
	}, hits.Vec3{})
	idx := sectors.NewIndex(m, arena, 4)
	c := &Candidate{Arena: arena, Hits: []int{1, 2, 3, 4, 0}, Alive: true}

	st := Filter(idx, []*Candidate{c}, FilterConfig{TrackFilters: []filters.Kind{filters.DeltaPT}, Geometry: geo}, nil)
	assert.Equal(t, RejectInconclusive, c.Rejection)
	assert.Positive(t, st.Inconclusive)
}

func TestFilterZigZag(t *testing.T) {
	t.Parallel()

	arena := hits.NewCycleHits([]hits.Measurement{
		{Position: hits.Vec3{X: 4, Y: 1}},
		{Position: hits.Vec3{X: 3, Y: 0}},
		{Position: hits.Vec3{X: 2, Y: 1}},
		{Position: hits.Vec3{X: 1, Y: 0}},
	}, hits.Vec3{})
	c := &Candidate{Arena: arena, Hits: []int{1, 2, 3, 4}, Alive: true}
	Filter(nil, []*Candidate{c}, FilterConfig{TrackFilters: []filters.Kind{filters.ZigZagXY}, Geometry: geo}, nil)
	assert.Equal(t, RejectZigZagXY, c.Rejection)
}

func TestFilterTooShort(t *testing.T) {
	t.Parallel()

	arena := hits.NewCycleHits([]hits.Measurement{{Position: hits.Vec3{X: 1}}}, hits.Vec3{})
	c := &Candidate{Arena: arena, Hits: []int{1, 0}, Alive: true}
	st := Filter(nil, []*Candidate{c}, FilterConfig{}, nil)
	assert.False(t, c.Alive)
	assert.Equal(t, 1, st.Rejected[RejectTooShort])
}

func TestFilterFitFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fitter    stubFitter
		store     bool
		wantAlive bool
	}{
		{"error rejects", stubFitter{err: errors.New("boom")}, false, false},
		{"low probability rejects", stubFitter{prob: 0.001}, false, false},
		{"stored failure survives", stubFitter{err: fit.ErrDegenerate}, true, true},
		{"good fit", stubFitter{prob: 0.6}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sectors.NewLayerChainMap("chain", 4, nil)
			c, idx := arcCandidate(m, testutil.Arc{Radius: 80, Step: 0.1, DZ: 1})
			st := Filter(idx, []*Candidate{c}, FilterConfig{
				Fitter:            tt.fitter,
				MinFitProbability: 0.01,
				StoreFailedFits:   tt.store,
				Geometry:          geo,
			}, nil)
			assert.Equal(t, tt.wantAlive, c.Alive)
			if tt.wantAlive && tt.fitter.err == nil {
				assert.Equal(t, tt.fitter.prob, c.Quality)
			}
			if tt.store {
				assert.Zero(t, c.Quality)
				assert.Equal(t, 1, st.FitFailures)
			}
		})
	}
}

func TestFilterQualityCoverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layers int
		want   float64
	}{
		{"unweighted", 0, 0.8},
		{"half the layers", 8, 0.4},
		{"capped at full coverage", 2, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sectors.NewLayerChainMap("chain", 4, nil)
			c, idx := arcCandidate(m, testutil.Arc{Radius: 80, Step: 0.1, DZ: 1})
			Filter(idx, []*Candidate{c}, FilterConfig{
				Fitter:      stubFitter{prob: 0.8},
				TotalLayers: tt.layers,
				Geometry:    geo,
			}, nil)
			require.True(t, c.Alive, c.Rejection)
			assert.InDelta(t, tt.want, c.Quality, 1e-12)
		})
	}
}
