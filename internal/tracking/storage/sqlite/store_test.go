package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackfinder/internal/monitoring"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	s, err := Open(filepath.Join(t.TempDir(), "tracks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func sampleResult(eventID int64) pipeline.Result {
	return pipeline.Result{
		EventID: eventID,
		Tracks: []pipeline.Track{
			{
				EventID: eventID, Pass: "barrel", ID: 0, Quality: 0.93, PT: 0.36, Charge: 1, Radius: 80,
				Hits: []pipeline.TrackHit{
					{Measurement: 0, Layer: 2, Sector: "2_0_0", Detector: hits.DetectorStrip, Position: hits.Vec3{X: 1.5, Y: 15.9, Z: 2}},
					{Measurement: 1, Layer: 1, Sector: "1_0_0", Detector: hits.DetectorPixel, Position: hits.Vec3{X: 0.4, Y: 7.9, Z: 1}},
				},
			},
			{
				EventID: eventID, Pass: "barrel", ID: 3, Quality: 0.5, PT: 1.2, Charge: -1, Radius: 266.7,
				Hits: []pipeline.TrackHit{
					{Measurement: 4, Layer: 1, Sector: "1_0_2", Detector: hits.DetectorPixel, Position: hits.Vec3{X: -3, Y: 1, Z: 0.5}},
				},
			},
		},
		Stats: pipeline.Stats{
			Hits: 5, Segments: 9, Candidates: 4, Tracks: 2, Overlapping: 2, OverlapMode: "duel",
			Rejected: map[string]int{"overlap": 1, "fit": 1},
		},
	}
}

func TestMigrateUpDown(t *testing.T) {
	s := newTestStore(t)

	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateUp(), "second MigrateUp is a no-op")

	require.NoError(t, s.MigrateDown())
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, v)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'tf_runs'`).Scan(&n))
	assert.Zero(t, n)
}

func TestExportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, "unit", []byte(`{"seed": 1}`))
	require.NoError(t, err)
	require.Len(t, runID, 36)

	want := sampleResult(42)
	require.NoError(t, s.Exporter(runID).Export(ctx, want))

	got, err := s.Tracks(ctx, runID, 42)
	require.NoError(t, err)
	if diff := cmp.Diff(want.Tracks, got); diff != "" {
		t.Errorf("tracks mismatch (-want +got):\n%s", diff)
	}

	recs, err := s.EventStats(ctx, runID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(42), recs[0].EventID)
	assert.False(t, recs[0].Aborted)
	if diff := cmp.Diff(want.Stats, recs[0].Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "unit", runs[0].Label)
	assert.JSONEq(t, `{"seed": 1}`, runs[0].ConfigJSON)
}

func TestExportReplacesEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID, err := s.BeginRun(ctx, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Export(ctx, runID, sampleResult(1)))
	aborted := pipeline.Result{EventID: 1, Aborted: true, AbortReason: "segment limit exceeded", Stats: pipeline.Stats{Aborts: 1}}
	require.NoError(t, s.Export(ctx, runID, aborted))

	tracks, err := s.Tracks(ctx, runID, 1)
	require.NoError(t, err)
	assert.Empty(t, tracks, "re-export drops the earlier tracks")

	var hitRows int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM tf_track_hits WHERE run_id = ?`, runID).Scan(&hitRows))
	assert.Zero(t, hitRows)

	recs, err := s.EventStats(ctx, runID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Aborted)
	assert.Equal(t, "segment limit exceeded", recs[0].AbortReason)
	assert.Equal(t, 1, recs[0].Stats.Aborts)
}

func TestExportUnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.Export(context.Background(), "no-such-run", sampleResult(1))
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestExportConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID, err := s.BeginRun(ctx, "concurrent", nil)
	require.NoError(t, err)
	exp := s.Exporter(runID)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = exp.Export(ctx, sampleResult(int64(i)))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	recs, err := s.EventStats(ctx, runID)
	require.NoError(t, err)
	require.Len(t, recs, 8)
	for i, r := range recs {
		assert.Equal(t, int64(i), r.EventID)
	}
}

func TestRunsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, err := s.BeginRun(ctx, "a", nil)
	require.NoError(t, err)
	b, err := s.BeginRun(ctx, "b", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	require.NoError(t, pipeline.ExportAll(ctx, s.Exporter(a), []pipeline.Result{sampleResult(1), sampleResult(2)}))

	recs, err := s.EventStats(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, recs)
	recs, err = s.EventStats(ctx, a)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
