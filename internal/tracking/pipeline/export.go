package pipeline

import (
	"context"

	"github.com/banshee-data/trackfinder/internal/tracking/candidates"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// Exporter receives the result of each cycle. Implementations live outside
// the tracking core (internal/tracking/storage/sqlite, internal/tracking/report).
type Exporter interface {
	Export(ctx context.Context, r Result) error
}

// TrackHit is one measurement on an exported track.
type TrackHit struct {
	Measurement int // index into Event.Measurements
	Layer       int
	Sector      string
	Detector    hits.Detector
	Position    hits.Vec3
}

// Track is a surviving candidate, outermost hit first.
type Track struct {
	EventID int64
	Pass    string
	ID      int
	Quality float64
	PT      float64 // GeV/c
	Charge  int
	Radius  float64 // cm
	Hits    []TrackHit
}

func newTrack(eventID int64, pass string, c *candidates.Candidate) Track {
	t := Track{
		EventID: eventID,
		Pass:    pass,
		ID:      c.ID,
		Quality: c.Quality,
		PT:      c.PT,
		Charge:  c.Charge,
		Radius:  c.Radius,
		Hits:    make([]TrackHit, 0, len(c.Hits)),
	}
	for _, h := range c.Points() {
		if h.Virtual {
			continue
		}
		t.Hits = append(t.Hits, TrackHit{
			Measurement: h.Measurement,
			Layer:       h.Layer,
			Sector:      h.Sector,
			Detector:    h.Detector,
			Position:    h.Position,
		})
	}
	return t
}

// ExportAll hands every result to exp in order and stops at the first error.
func ExportAll(ctx context.Context, exp Exporter, results []Result) error {
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exp.Export(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
