package sectors

import (
	"sort"

	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// Index groups the hits of one pass by sector.
type Index struct {
	m        *Map
	bySector map[string][]int
	active   []string

	// OutOfRange counts hits dropped because their sector is not in the map
	// or their layer is above the pass's highest layer.
	OutOfRange int
}

// NewIndex places every hit of the arena into its sector.
func NewIndex(m *Map, arena []hits.Hit, highestLayer int) *Index {
	idx := &Index{m: m, bySector: make(map[string][]int)}
	for i := range arena {
		h := &arena[i]
		if _, ok := m.Sectors[h.Sector]; !ok || h.Layer > highestLayer {
			idx.OutOfRange++
			continue
		}
		idx.bySector[h.Sector] = append(idx.bySector[h.Sector], h.Index)
	}
	idx.active = make([]string, 0, len(idx.bySector))
	for id := range idx.bySector {
		idx.active = append(idx.active, id)
	}
	sort.Slice(idx.active, func(a, b int) bool {
		la, lb := m.Sectors[idx.active[a]].Layer, m.Sectors[idx.active[b]].Layer
		if la != lb {
			return la > lb
		}
		return idx.active[a] < idx.active[b]
	})
	return idx
}

// Map returns the sector map the index was built from.
func (x *Index) Map() *Map { return x.m }

// ActiveSectors returns the sectors holding at least one hit, outermost
// layer first and by id within a layer.
func (x *Index) ActiveSectors() []string { return x.active }

// Hits returns the hit indices of a sector in arena order.
func (x *Index) Hits(sector string) []int { return x.bySector[sector] }

// FriendHits returns the hits of every friend of sector, friend by friend in
// the map's friend order.
func (x *Index) FriendHits(sector string) []int {
	s, ok := x.m.Sectors[sector]
	if !ok {
		return nil
	}
	var out []int
	for _, f := range s.Friends {
		out = append(out, x.bySector[f]...)
	}
	return out
}

// Cutoff is shorthand for Map().Cutoff.
func (x *Index) Cutoff(sector, friend string, kind filters.Kind) (filters.Cutoff, bool) {
	return x.m.Cutoff(sector, friend, kind)
}
