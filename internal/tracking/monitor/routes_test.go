package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackfinder/internal/testutil"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
	store "github.com/banshee-data/trackfinder/internal/tracking/storage/sqlite"
)

// loopbackRequest sets RemoteAddr to loopback so tsweb allows debug access.
func loopbackRequest(method, target string) *http.Request {
	req := testutil.NewTestRequest(method, target)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func sampleResults() []pipeline.Result {
	return []pipeline.Result{
		{EventID: 1, Tracks: []pipeline.Track{{EventID: 1, Pass: "barrel"}}, Stats: pipeline.Stats{Hits: 6, Tracks: 1}},
		{EventID: 2, Aborted: true, AbortReason: "round limit exceeded", Stats: pipeline.Stats{Hits: 4, Aborts: 1}},
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tracks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func TestAttachDebugRoutes_Registered(t *testing.T) {
	s := newStore(t)
	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, s.DB(), sampleResults))

	for _, endpoint := range []string{"/debug/", "/debug/tailsql/", "/debug/db-stats", "/debug/stats", "/debug/summary"} {
		t.Run(endpoint, func(t *testing.T) {
			w := testutil.NewTestRecorder()
			mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, endpoint))
			assert.NotEqual(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestAttachDebugRoutes_RemoteDenied(t *testing.T) {
	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, nil, sampleResults))

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/debug/summary"))
	testutil.AssertStatusCode(t, w.Code, http.StatusForbidden)
}

func TestAttachDebugRoutes_Index(t *testing.T) {
	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, newStore(t).DB(), nil))

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), "SQL live debugging")
	assert.Contains(t, w.Body.String(), "Per-event cycle statistics")
}

func TestAttachDebugRoutes_NoDB(t *testing.T) {
	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, nil, sampleResults))

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.NotContains(t, w.Body.String(), "SQL live debugging")
}

func TestStatsPage(t *testing.T) {
	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, nil, sampleResults))

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/stats"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "2 events, 1 tracks, 1 aborted")
}

func TestSummary(t *testing.T) {
	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, nil, sampleResults))

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/summary"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var s pipeline.Summary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&s))
	assert.Equal(t, 2, s.Events)
	assert.Equal(t, 10, s.Totals.Hits)
	assert.Equal(t, 1, s.Totals.Tracks)
	assert.Equal(t, 1, s.Totals.Aborts)
}

func TestDBStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	runID, err := s.BeginRun(ctx, "debug", nil)
	require.NoError(t, err)
	require.NoError(t, pipeline.ExportAll(ctx, s.Exporter(runID), sampleResults()))

	mux := http.NewServeMux()
	require.NoError(t, AttachDebugRoutes(mux, s.DB(), sampleResults))

	w := testutil.NewTestRecorder()
	mux.ServeHTTP(w, loopbackRequest(http.MethodGet, "/debug/db-stats"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var counts []TableCount
	require.NoError(t, json.NewDecoder(w.Body).Decode(&counts))
	got := make(map[string]int64)
	for _, c := range counts {
		got[c.Name] = c.Rows
	}
	assert.Equal(t, map[string]int64{"tf_events": 2, "tf_runs": 1, "tf_track_hits": 0, "tf_tracks": 1}, got)
}
