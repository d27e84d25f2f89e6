package segments

import (
	"fmt"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
)

// BuildStats counts the outcome of segment building.
type BuildStats struct {
	Created           int
	Discarded         int
	DiscardedOrdering int
	Inconclusive      int
}

// Build creates a segment for every (own hit, friend hit) pair of every
// active sector that passes at least MinSegmentFilters of the activated
// two-hit filters. The inner hit must lie strictly closer to the origin
// than the outer hit. The arena is modified in place and owned by the
// returned graph.
func Build(idx *sectors.Index, arena []hits.Hit, cfg Config) (*Graph, BuildStats, error) {
	g := &Graph{Hits: arena}
	var st BuildStats
	origin := cfg.Geometry.Origin

	for _, sector := range idx.ActiveSectors() {
		friends := idx.FriendHits(sector)
		if len(friends) == 0 {
			continue
		}
		for _, o := range idx.Hits(sector) {
			outer := &arena[o]
			rOuter := outer.Position.Sub(origin).Mag()
			for _, i := range friends {
				inner := &arena[i]
				if inner.Position.Sub(origin).Mag() >= rOuter {
					st.DiscardedOrdering++
					continue
				}
				passing := 0
				for _, k := range cfg.SegmentFilters {
					cut, ok := idx.Cutoff(sector, inner.Sector, k)
					if !ok {
						continue
					}
					v := cfg.Geometry.Evaluate(k, cut, outer.Position, inner.Position)
					if v.Inconclusive() {
						st.Inconclusive++
						continue
					}
					if v.Passed {
						passing++
					}
				}
				if passing < cfg.MinSegmentFilters {
					st.Discarded++
					continue
				}
				g.addSegment(o, i)
				st.Created++
				if n := cfg.ActiveBefore + len(g.Segments); cfg.MaxActiveSegments > 0 && n > cfg.MaxActiveSegments {
					return g, st, fmt.Errorf("building sector %s: %d segments (max %d): %w",
						sector, n, cfg.MaxActiveSegments, ErrSegmentLimit)
				}
			}
		}
	}
	return g, st, nil
}

// LinkStats counts the outcome of neighbor linking.
type LinkStats struct {
	Links        int
	Rejected     int
	Inconclusive int
	Discarded    int
	Surviving    int
}

// Link connects every segment S to the segments T that continue it inward
// (T.Outer == S.Inner) when the triple passes at least MinNeighborFilters
// of the activated three-hit filters. Segments left without any neighbor
// are discarded; the rest copy their inner neighbors into
// AllInnerNeighbors and start at state 1 when they have one.
func (g *Graph) Link(idx *sectors.Index, cfg Config) (LinkStats, error) {
	var st LinkStats
	for si := range g.Segments {
		s := &g.Segments[si]
		outer, center := &g.Hits[s.Outer], &g.Hits[s.Inner]
		for _, ti := range center.InnerSegments {
			t := &g.Segments[ti]
			inner := &g.Hits[t.Inner]
			if !g.tripletPasses(idx, cfg, outer, center, inner, &st) {
				st.Rejected++
				continue
			}
			s.InnerNeighbors = append(s.InnerNeighbors, ti)
			t.OuterNeighbors = append(t.OuterNeighbors, si)
			if center.Layer < cfg.HighestLayer {
				t.Seed = false
			}
			st.Links++
		}
	}

	for i := range g.Segments {
		s := &g.Segments[i]
		if len(s.InnerNeighbors) == 0 && len(s.OuterNeighbors) == 0 {
			s.Discarded = true
			s.Active = false
			st.Discarded++
			continue
		}
		s.AllInnerNeighbors = append([]int(nil), s.InnerNeighbors...)
		if len(s.InnerNeighbors) > 0 {
			s.State = 1
		}
		st.Surviving++
	}
	if n := cfg.ActiveBefore + st.Surviving; cfg.MaxActiveSegments > 0 && n > cfg.MaxActiveSegments {
		return st, fmt.Errorf("%d linked segments (max %d): %w", n, cfg.MaxActiveSegments, ErrSegmentLimit)
	}
	return st, nil
}

func (g *Graph) tripletPasses(idx *sectors.Index, cfg Config, outer, center, inner *hits.Hit, st *LinkStats) bool {
	passing := 0
	for _, k := range cfg.NeighborFilters {
		cut, ok := idx.Cutoff(outer.Sector, center.Sector, k)
		if !ok {
			continue
		}
		v := cfg.Geometry.Evaluate(k, cut, outer.Position, center.Position, inner.Position)
		if v.Inconclusive() {
			st.Inconclusive++
			continue
		}
		if v.Passed {
			passing++
		}
	}
	return passing >= cfg.MinNeighborFilters
}
