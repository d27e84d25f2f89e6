package candidates

import (
	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/fit"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
)

// FilterConfig holds the candidate filter settings of one pass.
type FilterConfig struct {
	// TrackFilters activates zigzagXY, zigzagRZ, deltaPt and
	// deltaDistance2IP. Order is irrelevant; the filter applies them in a
	// fixed sequence.
	TrackFilters      []filters.Kind
	Fitter            fit.Service // nil skips the fit; quality stays 0
	MinFitProbability float64
	StoreFailedFits   bool
	Geometry          filters.Geometry

	// TotalLayers, when positive, scales the fit probability by the
	// fraction of layers the candidate covers (capped at 1) to form its
	// quality.
	TotalLayers int
}

// FilterStats counts the filter's decisions.
type FilterStats struct {
	Checked      int
	Survived     int
	Rejected     map[string]int
	FitFailures  int
	Inconclusive int
	NoCutoff     int
}

func (s *FilterStats) reject(o *Ownership, c *Candidate, reason string) {
	if s.Rejected == nil {
		s.Rejected = make(map[string]int)
	}
	s.Rejected[reason]++
	if o != nil {
		o.Kill(c, reason)
		return
	}
	c.Alive = false
	c.Rejection = reason
}

// Filter applies, per live candidate: the minimum length check, zigzagXY,
// the fit, the four-hit windows (deltaPt then deltaDistance2IP) and, for
// at least five real hits, zigzagRZ. Survivors lose their virtual hit and
// get quality and initial parameter estimates. When o is non-nil all
// rejections go through it.
func Filter(idx *sectors.Index, cs []*Candidate, cfg FilterConfig, o *Ownership) FilterStats {
	active := make(map[filters.Kind]bool, len(cfg.TrackFilters))
	for _, k := range cfg.TrackFilters {
		active[k] = true
	}
	var st FilterStats
	for _, c := range cs {
		if !c.Alive {
			continue
		}
		st.Checked++
		if reason := filterOne(idx, c, cfg, active, &st); reason != "" {
			st.reject(o, c, reason)
			continue
		}
		c.removeVirtualHits()
		estimate(c, cfg.Geometry)
		st.Survived++
	}
	return st
}

func filterOne(idx *sectors.Index, c *Candidate, cfg FilterConfig, active map[filters.Kind]bool, st *FilterStats) string {
	if len(c.Hits) < 3 {
		return RejectTooShort
	}
	pts := c.positions()

	if active[filters.ZigZagXY] {
		if v := filters.ZigZag(filters.ZigZagXY, pts); !v.Inconclusive() && !v.Passed {
			return RejectZigZagXY
		}
	}

	if cfg.Fitter != nil {
		res, err := cfg.Fitter.Fit(c.Points())
		switch {
		case err != nil || res.Probability < cfg.MinFitProbability:
			st.FitFailures++
			if !cfg.StoreFailedFits {
				return RejectFit
			}
			c.Quality = 0
		default:
			c.Quality = res.Probability * coverage(c.RealHits(), cfg.TotalLayers)
			c.Radius = res.Radius
		}
	}

	if reason := checkWindows(idx, c, pts, cfg.Geometry, active, st); reason != "" {
		return reason
	}

	if active[filters.ZigZagRZ] && c.RealHits() >= 5 {
		if v := filters.ZigZag(filters.ZigZagRZ, pts); !v.Inconclusive() && !v.Passed {
			return RejectZigZagRZ
		}
	}
	return ""
}

func coverage(realHits, totalLayers int) float64 {
	if totalLayers <= 0 || realHits >= totalLayers {
		return 1
	}
	return float64(realHits) / float64(totalLayers)
}

var windowKinds = []struct {
	kind   filters.Kind
	reason string
}{
	{filters.DeltaPT, RejectDeltaPT},
	{filters.DeltaDistance2IP, RejectDeltaIP},
}

// checkWindows slides a four-hit window along the candidate. An
// inconclusive filter falls through to the next kind; a window where every
// active kind with a cutoff is inconclusive rejects the candidate.
func checkWindows(idx *sectors.Index, c *Candidate, pts []hits.Vec3, geo filters.Geometry, active map[filters.Kind]bool, st *FilterStats) string {
	for i := 0; i+3 < len(pts); i++ {
		outer, next := c.Arena[c.Hits[i]].Sector, c.Arena[c.Hits[i+1]].Sector
		tried, decided := false, false
		for _, w := range windowKinds {
			if !active[w.kind] {
				continue
			}
			cut, ok := idx.Cutoff(outer, next, w.kind)
			if !ok {
				st.NoCutoff++
				continue
			}
			tried = true
			v := geo.Evaluate(w.kind, cut, pts[i], pts[i+1], pts[i+2], pts[i+3])
			if v.Inconclusive() {
				st.Inconclusive++
				continue
			}
			decided = true
			if !v.Passed {
				return w.reason
			}
		}
		if tried && !decided {
			return RejectInconclusive
		}
	}
	return ""
}

// estimate fills radius, pT and charge from the innermost three hits when
// the fit did not provide a radius.
func estimate(c *Candidate, geo filters.Geometry) {
	pts := c.positions()
	n := len(pts)
	if n < 3 {
		return
	}
	outer, center, inner := pts[n-3], pts[n-2], pts[n-1]
	if c.Radius <= 0 {
		if _, r, reason := filters.Circle(outer, center, inner); reason == filters.ReasonNone {
			c.Radius = r
		}
	}
	if c.Radius > 0 {
		c.PT = geo.PTFromRadius(c.Radius)
	}
	c.Charge = geo.Charge(outer, center, inner)
}
