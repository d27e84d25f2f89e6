package sectors

import (
	"fmt"

	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// LayerSectorID is the sector id NewLayerChainMap gives to a layer.
func LayerSectorID(layer int) string {
	if layer == 0 {
		return hits.VirtualSector
	}
	return fmt.Sprintf("%d_0_0", layer)
}

// UniformCutoffs applies one cutoff to every listed kind.
func UniformCutoffs(c filters.Cutoff, kinds ...filters.Kind) map[filters.Kind]filters.Cutoff {
	out := make(map[filters.Kind]filters.Cutoff, len(kinds))
	for _, k := range kinds {
		out[k] = c
	}
	return out
}

// NewLayerChainMap builds a map with one sector per layer 1..layers where
// each layer's only friend is the layer below and layer 1 points at the
// virtual sector.
//
// NOTE: intended for tests and synthetic runs; real maps come from LoadMap.
func NewLayerChainMap(name string, layers int, cuts map[filters.Kind]filters.Cutoff) *Map {
	m := &Map{Name: name, Sectors: make(map[string]*Sector, layers+1)}
	m.EnsureVirtual()
	for l := 1; l <= layers; l++ {
		friend := LayerSectorID(l - 1)
		cp := make(map[filters.Kind]filters.Cutoff, len(cuts))
		for k, c := range cuts {
			cp[k] = c
		}
		m.Sectors[LayerSectorID(l)] = &Sector{
			ID:      LayerSectorID(l),
			Layer:   l,
			Friends: []string{friend},
			Cutoffs: map[string]map[filters.Kind]filters.Cutoff{friend: cp},
		}
	}
	return m
}
