package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/trackfinder/internal/testutil"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
	"github.com/banshee-data/trackfinder/internal/tracking/report"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
	"github.com/banshee-data/trackfinder/internal/tracking/storage/sqlite"
	"github.com/banshee-data/trackfinder/internal/tracking/stream"
)

const defaultsPath = "../../config/trackfinder.defaults.json"

func arcRecord(id int64, rotation float64) eventRecord {
	arc := testutil.Arc{Radius: 80, Step: 0.1, DZ: 1, Rotation: rotation}
	rec := eventRecord{Event: id}
	for _, m := range arc.Measurements(6, sectors.LayerSectorID) {
		rec.Hits = append(rec.Hits, hitRecord{
			Sector:   m.Sector,
			Layer:    m.Layer,
			Position: [3]float64{m.Position.X, m.Position.Y, m.Position.Z},
			Sigma:    [3]float64{m.Sigma.X, m.Sigma.Y, m.Sigma.Z},
			Detector: m.Detector.String(),
			Clusters: m.Clusters,
		})
	}
	return rec
}

func writeEvents(t *testing.T, recs ...eventRecord) string {
	t.Helper()
	b, err := json.Marshal(recs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestDecodeEvents(t *testing.T) {
	in := `[{"event": 7, "hits": [
		{"sector": "4_1_3", "layer": 4, "position": [1, 2, 3], "sigma": [0.1, 0.1, 0.2], "detector": "strip", "clusters": [12, 40]},
		{"sector": "1_0_0", "layer": 1, "position": [0.5, 0, 0], "detector": "pixel", "clusters": [3]}
	]}, {"event": 8, "hits": []}]`

	events, err := decodeEvents(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(7), events[0].ID)
	assert.Equal(t, hits.Measurement{
		Sector:   "4_1_3",
		Layer:    4,
		Position: hits.Vec3{X: 1, Y: 2, Z: 3},
		Sigma:    hits.Vec3{X: 0.1, Y: 0.1, Z: 0.2},
		Detector: hits.DetectorStrip,
		Clusters: []int{12, 40},
	}, events[0].Measurements[0])
	assert.Equal(t, hits.DetectorPixel, events[0].Measurements[1].Detector)
	assert.Empty(t, events[1].Measurements)
}

func TestDecodeEventsErrors(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"syntax", `[{"event": 1,`, "failed to parse"},
		{"unknown field", `[{"event": 1, "tracks": []}]`, "unknown field"},
		{"unknown detector", `[{"event": 1, "hits": [{"sector": "1_0_0", "detector": "calo"}]}]`, "unknown detector"},
		{"virtual", `[{"event": 1, "hits": [{"sector": "00_00_0", "detector": "virtual"}]}]`, "virtual"},
		{"missing sector", `[{"event": 1, "hits": [{"detector": "pixel"}]}]`, "missing sector"},
		{"duplicate", `[{"event": 1}, {"event": 1}]`, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEvents(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer

	_, err := parseFlags(nil, &stderr)
	assert.ErrorContains(t, err, "-events is required")

	_, err = parseFlags([]string{"-events", "e.json", "-workers", "-1"}, &stderr)
	assert.ErrorContains(t, err, "-workers")

	_, err = parseFlags([]string{"-bogus"}, &stderr)
	assert.Error(t, err)

	o, err := parseFlags([]string{"-events", "data/run42.json", "-workers", "2", "-grpc", "localhost:50051"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "run42", o.label)
	assert.Equal(t, 2, o.workers)
	assert.Equal(t, "localhost:50051", o.grpcAddr)

	o, err = parseFlags([]string{"-version"}, &stderr)
	require.NoError(t, err)
	assert.True(t, o.showVersion)
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	o := options{
		configPath: defaultsPath,
		eventsPath: writeEvents(t, arcRecord(1, 0.3), arcRecord(2, 2.5)),
		dbPath:     filepath.Join(dir, "tracks.db"),
		label:      "e2e",
		plotsDir:   filepath.Join(dir, "plots"),
		reportPath: filepath.Join(dir, "report.html"),
		workers:    2,
	}
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), o, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "events: 2  tracks: 2  aborted: 0")
	assert.Contains(t, out, "stored run ")
	assert.Empty(t, stderr.String())

	plots := report.PlotExporter{Dir: o.plotsDir}
	for _, id := range []int64{1, 2} {
		_, err := os.Stat(plots.Path(id))
		assert.NoError(t, err)
	}
	html, err := os.ReadFile(o.reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Cycle stages")

	store, err := sqlite.Open(o.dbPath)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "e2e", runs[0].Label)

	tracks, err := store.Tracks(ctx, runs[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Len(t, tracks[0].Hits, 6)
	assert.Equal(t, "barrel", tracks[0].Pass)
}

func TestStartStream(t *testing.T) {
	rs, err := startStream("127.0.0.1:0")
	require.NoError(t, err)
	stopped := false
	defer func() {
		if !stopped {
			rs.stop()
		}
	}()

	conn, err := grpc.NewClient(rs.addr.String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := stream.Subscribe(ctx, conn)
	require.NoError(t, err)

	results := []pipeline.Result{{EventID: 1}, {EventID: 2, Aborted: true, AbortReason: "candidate limit exceeded"}}
	require.NoError(t, pipeline.ExportAll(ctx, rs.pub, results))
	for _, want := range results {
		got, err := sub.Recv()
		require.NoError(t, err)
		assert.Equal(t, want.EventID, got.EventID)
		assert.Equal(t, want.AbortReason, got.AbortReason)
	}

	rs.stop()
	stopped = true
	_, err = sub.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRunPreconditionErrors(t *testing.T) {
	events := writeEvents(t, arcRecord(1, 0))
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), options{configPath: "missing.json", eventsPath: events}, &stdout, &stderr)
	assert.Error(t, err)

	err = run(context.Background(), options{configPath: defaultsPath, eventsPath: "missing.json"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "event file")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = run(ctx, options{configPath: defaultsPath, eventsPath: events}, &stdout, &stderr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintSummary(t *testing.T) {
	results := []pipeline.Result{
		{EventID: 1, Stats: pipeline.Stats{Hits: 6, Tracks: 1, Rejected: map[string]int{"zigzagXY": 2, "fit": 1}}},
		{EventID: 2, Aborted: true, AbortReason: "round limit exceeded", Stats: pipeline.Stats{Aborts: 1}},
	}
	var buf bytes.Buffer
	printSummary(&buf, results, 0)

	out := buf.String()
	assert.Contains(t, out, "events: 2  tracks: 1  aborted: 1")
	assert.Contains(t, out, "rejected: fit=1 zigzagXY=2\n")
	assert.Contains(t, out, "event 2 aborted: round limit exceeded")
}
