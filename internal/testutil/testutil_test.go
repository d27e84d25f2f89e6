package testutil

import (
	"math"
	"net/http"
	"strconv"
	"testing"
)

func TestAssertHelpers(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest("GET", "/test")
	if req.Method != "GET" {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if req.URL.Path != "/test" {
		t.Errorf("path = %s, want /test", req.URL.Path)
	}
	if rec := NewTestRecorder(); rec.Code != http.StatusOK {
		t.Errorf("recorder code = %d, want 200", rec.Code)
	}
}

func TestArcPointsLieOnCircle(t *testing.T) {
	t.Parallel()

	a := Arc{Radius: 60, Step: 0.1, DZ: 2, Rotation: 0.7}
	cx, cy := 60*math.Cos(0.7), 60*math.Sin(0.7)
	prev := 0.0
	for l := 1; l <= 6; l++ {
		p := a.Point(l)
		if d := math.Hypot(p.X-cx, p.Y-cy); math.Abs(d-60) > 1e-9 {
			t.Errorf("layer %d: distance to center = %v, want 60", l, d)
		}
		if r := p.Mag(); r <= prev {
			t.Errorf("layer %d: radius %v not increasing (prev %v)", l, r, prev)
		} else {
			prev = r
		}
	}
}

func TestArcMeasurements(t *testing.T) {
	t.Parallel()

	ms := Arc{Radius: 50, Step: 0.1, FirstCluster: 100}.Measurements(3, strconv.Itoa)
	if len(ms) != 3 {
		t.Fatalf("got %d measurements, want 3", len(ms))
	}
	if ms[0].Layer != 3 || ms[0].Sector != "3" {
		t.Errorf("first measurement = layer %d sector %s, want outermost", ms[0].Layer, ms[0].Sector)
	}
	if ms[2].Clusters[0] != 102 || ms[2].Clusters[1] != 103 {
		t.Errorf("layer 1 clusters = %v, want [102 103]", ms[2].Clusters)
	}
}
