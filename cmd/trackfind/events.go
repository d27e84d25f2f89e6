package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
)

// eventRecord is one entry of the event file.
type eventRecord struct {
	Event int64       `json:"event"`
	Hits  []hitRecord `json:"hits"`
}

type hitRecord struct {
	Sector   string     `json:"sector"`
	Layer    int        `json:"layer"`
	Position [3]float64 `json:"position"`
	Sigma    [3]float64 `json:"sigma"`
	Detector string     `json:"detector"`
	Clusters []int      `json:"clusters"`
}

// loadEvents reads a JSON event file.
func loadEvents(path string) ([]pipeline.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()
	return decodeEvents(f)
}

func decodeEvents(r io.Reader) ([]pipeline.Event, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var recs []eventRecord
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("failed to parse event file: %w", err)
	}

	seen := make(map[int64]bool, len(recs))
	events := make([]pipeline.Event, 0, len(recs))
	for _, rec := range recs {
		if seen[rec.Event] {
			return nil, fmt.Errorf("event %d: duplicate event id", rec.Event)
		}
		seen[rec.Event] = true

		ev := pipeline.Event{ID: rec.Event, Measurements: make([]hits.Measurement, 0, len(rec.Hits))}
		for i, h := range rec.Hits {
			m, err := h.measurement()
			if err != nil {
				return nil, fmt.Errorf("event %d hit %d: %w", rec.Event, i, err)
			}
			ev.Measurements = append(ev.Measurements, m)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (h hitRecord) measurement() (hits.Measurement, error) {
	det, err := hits.ParseDetector(h.Detector)
	if err != nil {
		return hits.Measurement{}, err
	}
	if det == hits.DetectorVirtual {
		return hits.Measurement{}, fmt.Errorf("virtual hits are added by the finder")
	}
	if h.Sector == "" {
		return hits.Measurement{}, fmt.Errorf("missing sector")
	}
	return hits.Measurement{
		Sector:   h.Sector,
		Layer:    h.Layer,
		Position: hits.Vec3{X: h.Position[0], Y: h.Position[1], Z: h.Position[2]},
		Sigma:    hits.Vec3{X: h.Sigma[0], Y: h.Sigma[1], Z: h.Sigma[2]},
		Detector: det,
		Clusters: h.Clusters,
	}, nil
}
