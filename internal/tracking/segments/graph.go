package segments

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// ErrSegmentLimit is the circuit breaker raised when a pass produces more
// segments than the configured maximum.
var ErrSegmentLimit = errors.New("segment limit exceeded")

// Segment is a directed edge from an outer hit to an inner hit. State,
// Active and UpgradePending are owned by the cellular automaton.
type Segment struct {
	Index int
	Outer int // hit index
	Inner int // hit index

	State          int
	Active         bool
	UpgradePending bool
	Seed           bool
	Discarded      bool

	// InnerNeighbors and OuterNeighbors are the working lists; the automaton
	// prunes InnerNeighbors.
	InnerNeighbors []int
	OuterNeighbors []int
	// AllInnerNeighbors is the canonical copy taken before the automaton.
	AllInnerNeighbors []int
}

// Config holds the per-pass settings of the builder and the linker.
type Config struct {
	SegmentFilters     []filters.Kind
	NeighborFilters    []filters.Kind
	MinSegmentFilters  int
	MinNeighborFilters int
	HighestLayer       int
	MaxActiveSegments  int // 0 disables the limit
	Geometry           filters.Geometry

	// ActiveBefore is the number of active segments earlier passes of the
	// cycle left; it counts against MaxActiveSegments.
	ActiveBefore int
}

// Graph is the segment arena of one pass together with its hit arena.
type Graph struct {
	Hits     []hits.Hit
	Segments []Segment
}

// Live returns the number of segments not discarded by the linker.
func (g *Graph) Live() int {
	n := 0
	for i := range g.Segments {
		if !g.Segments[i].Discarded {
			n++
		}
	}
	return n
}

func (g *Graph) addSegment(outer, inner int) int {
	idx := len(g.Segments)
	g.Segments = append(g.Segments, Segment{
		Index:  idx,
		Outer:  outer,
		Inner:  inner,
		Active: true,
		Seed:   true,
	})
	g.Hits[outer].InnerSegments = append(g.Hits[outer].InnerSegments, idx)
	g.Hits[inner].OuterSegments = append(g.Hits[inner].OuterSegments, idx)
	return idx
}

// VerifyAcyclic checks that the canonical inner-neighbor links form a DAG.
func (g *Graph) VerifyAcyclic() error {
	dg := simple.NewDirectedGraph()
	for i := range g.Segments {
		if !g.Segments[i].Discarded {
			dg.AddNode(simple.Node(int64(i)))
		}
	}
	for i := range g.Segments {
		s := &g.Segments[i]
		if s.Discarded {
			continue
		}
		for _, t := range s.AllInnerNeighbors {
			if g.Segments[t].Discarded {
				continue
			}
			dg.SetEdge(simple.Edge{F: simple.Node(int64(i)), T: simple.Node(int64(t))})
		}
	}
	if _, err := topo.Sort(dg); err != nil {
		return fmt.Errorf("segment graph has a cycle: %w", err)
	}
	return nil
}
