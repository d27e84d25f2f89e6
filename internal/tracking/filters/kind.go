package filters

import (
	"fmt"
	"math"
)

// Kind names one geometric filter. The string values are the names used in
// sector maps and tuning files.
type Kind string

// Two-hit filters (segment building).
const (
	Distance3D       Kind = "distance3D"
	DistanceXY       Kind = "distanceXY"
	DistanceZ        Kind = "distanceZ"
	NormedDistance3D Kind = "normedDistance3D"
	SlopeRZ          Kind = "slopeRZ"
)

// Three-hit filters (neighbor linking).
const (
	Angles3D     Kind = "angles3D"
	AnglesXY     Kind = "anglesXY"
	AnglesRZ     Kind = "anglesRZ"
	DeltaSlopeRZ Kind = "deltaSlopeRZ"
	Distance2IP  Kind = "distance2IP"
	PT           Kind = "pT"
	HelixFit     Kind = "helixFit"
)

// Four-hit filters (candidate windows).
const (
	DeltaPT          Kind = "deltaPt"
	DeltaDistance2IP Kind = "deltaDistance2IP"
)

// Whole-track filters. They have no cutoff.
const (
	ZigZagXY Kind = "zigzagXY"
	ZigZagRZ Kind = "zigzagRZ"
)

// Arity is the number of hits a filter kind consumes; 0 for whole-track kinds.
func (k Kind) Arity() int {
	switch k {
	case Distance3D, DistanceXY, DistanceZ, NormedDistance3D, SlopeRZ:
		return 2
	case Angles3D, AnglesXY, AnglesRZ, DeltaSlopeRZ, Distance2IP, PT, HelixFit:
		return 3
	case DeltaPT, DeltaDistance2IP:
		return 4
	case ZigZagXY, ZigZagRZ:
		return 0
	}
	return -1
}

// MaxOnly reports whether only the upper bound of the cutoff applies.
func (k Kind) MaxOnly() bool {
	switch k {
	case DistanceZ, NormedDistance3D, AnglesRZ, Distance2IP, HelixFit, DeltaPT, DeltaDistance2IP:
		return true
	}
	return false
}

// ParseKinds validates filter names and checks they have the wanted arity.
func ParseKinds(names []string, arity int) ([]Kind, error) {
	out := make([]Kind, 0, len(names))
	seen := make(map[Kind]bool, len(names))
	for _, n := range names {
		k := Kind(n)
		a := k.Arity()
		if a < 0 {
			return nil, fmt.Errorf("unknown filter %q", n)
		}
		if a != arity {
			return nil, fmt.Errorf("filter %q takes %d hits, want %d", n, a, arity)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, nil
}

// Cutoff is the accepted [Min, Max] range of a filter value.
type Cutoff struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Accepts checks v against the cutoff. Max-only kinds ignore Min.
func (c Cutoff) Accepts(k Kind, v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if k.MaxOnly() {
		return v <= c.Max
	}
	return v >= c.Min && v <= c.Max
}

// Widen returns the cutoff grown by percent of its magnitude on both sides,
// negative values shrink it. Min never crosses Max.
func (c Cutoff) Widen(percent float64) Cutoff {
	f := percent / 100
	lo := c.Min - math.Abs(c.Min)*f
	hi := c.Max + math.Abs(c.Max)*f
	if lo > hi {
		mid := (c.Min + c.Max) / 2
		lo, hi = mid, mid
	}
	return Cutoff{Min: lo, Max: hi}
}
