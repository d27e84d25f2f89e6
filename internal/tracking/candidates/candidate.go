// Package candidates turns the automaton's segment graph into track
// candidates and prunes implausible ones.
//
// Responsibilities: candidate enumeration from seed segments, whole-track
// and four-hit window filters, the delegated fit, initial parameter
// estimates, and the per-cycle ownership table that maps hit keys to live
// candidates for overlap detection.
// Key types: Candidate, Ownership.
//
// Dependency rule: candidates may depend on hits, filters, fit, sectors and
// segments, never on overlap or pipeline.
package candidates

import (
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// Rejection reasons recorded on candidates removed by the filter.
const (
	RejectTooShort     = "too-short"
	RejectZigZagXY     = "zigzag-xy"
	RejectZigZagRZ     = "zigzag-rz"
	RejectFit          = "fit"
	RejectDeltaPT      = "delta-pt"
	RejectDeltaIP      = "delta-distance2ip"
	RejectInconclusive = "inconclusive-window"
	RejectOverlap      = "overlap"
)

// Candidate is one hypothesised particle trajectory.
type Candidate struct {
	ID   int
	Pass int
	// Arena is the hit arena of the candidate's pass; Hits index into it,
	// ordered outer to inner.
	Arena    []hits.Hit
	Hits     []int
	Segments []int
	Keys     []hits.Key

	Alive     bool
	Quality   float64
	Radius    float64
	PT        float64
	Charge    int
	Rivals    []*Candidate
	Reserved  bool
	Rejection string
}

// Points returns the hit records of the candidate, outer to inner.
func (c *Candidate) Points() []hits.Hit {
	out := make([]hits.Hit, len(c.Hits))
	for i, h := range c.Hits {
		out[i] = c.Arena[h]
	}
	return out
}

// RealHits counts the non-virtual hits.
func (c *Candidate) RealHits() int {
	n := 0
	for _, h := range c.Hits {
		if !c.Arena[h].Virtual {
			n++
		}
	}
	return n
}

// Conflicts reports whether c and o share a raw measurement.
func (c *Candidate) Conflicts(o *Candidate) bool {
	return hits.Intersects(c.Keys, o.Keys)
}

func (c *Candidate) positions() []hits.Vec3 {
	out := make([]hits.Vec3, len(c.Hits))
	for i, h := range c.Hits {
		out[i] = c.Arena[h].Position
	}
	return out
}

func (c *Candidate) removeVirtualHits() {
	kept := c.Hits[:0]
	for _, h := range c.Hits {
		if !c.Arena[h].Virtual {
			kept = append(kept, h)
		}
	}
	c.Hits = kept
}
