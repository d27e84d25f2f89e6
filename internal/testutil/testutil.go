// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and synthetic detector
// events so tracking tests across packages build their inputs the same way.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Arc describes a synthetic track: a helix through the origin with the given
// transverse radius (cm). The hit on layer l sits at turning angle
// Rotation + l*Step, with z = l*DZ.
type Arc struct {
	Radius   float64
	Step     float64
	DZ       float64
	Rotation float64
	// FirstCluster numbers the strip clusters of the track; layer l uses
	// FirstCluster+2l and FirstCluster+2l+1.
	FirstCluster int
}

// Point returns the position of the layer-l hit.
func (a Arc) Point(layer int) hits.Vec3 {
	phi := a.Step * float64(layer)
	// Circle through the origin, center at (Radius, 0) before rotation.
	x := a.Radius - a.Radius*math.Cos(phi)
	y := a.Radius * math.Sin(phi)
	c, s := math.Cos(a.Rotation), math.Sin(a.Rotation)
	return hits.Vec3{X: c*x - s*y, Y: s*x + c*y, Z: a.DZ * float64(layer)}
}

// Measurement returns the layer-l measurement in sector sector.
func (a Arc) Measurement(layer int, sector string) hits.Measurement {
	return hits.Measurement{
		Sector:   sector,
		Layer:    layer,
		Position: a.Point(layer),
		Sigma:    hits.Vec3{X: 0.002, Y: 0.002, Z: 0.005},
		Detector: hits.DetectorStrip,
		Clusters: []int{a.FirstCluster + 2*layer, a.FirstCluster + 2*layer + 1},
	}
}

// Measurements returns one measurement per layer 1..layers, outermost
// first. sectorOf maps a layer to its sector id.
func (a Arc) Measurements(layers int, sectorOf func(int) string) []hits.Measurement {
	out := make([]hits.Measurement, 0, layers)
	for l := layers; l >= 1; l-- {
		out = append(out, a.Measurement(l, sectorOf(l)))
	}
	return out
}
