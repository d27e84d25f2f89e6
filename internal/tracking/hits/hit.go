package hits

import (
	"fmt"
	"sort"
	"strings"
)

// VirtualSector is the id of the sector holding the virtual reference hit.
const VirtualSector = "00_00_0"

// Detector identifies the sub-detector a measurement comes from.
type Detector uint8

const (
	DetectorVirtual Detector = iota
	DetectorPixel
	DetectorStrip
)

func (d Detector) String() string {
	switch d {
	case DetectorVirtual:
		return "virtual"
	case DetectorPixel:
		return "pixel"
	case DetectorStrip:
		return "strip"
	default:
		return fmt.Sprintf("detector(%d)", uint8(d))
	}
}

// ParseDetector accepts the names produced by Detector.String.
func ParseDetector(s string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "virtual":
		return DetectorVirtual, nil
	case "pixel", "pxd":
		return DetectorPixel, nil
	case "strip", "svd":
		return DetectorStrip, nil
	}
	return 0, fmt.Errorf("unknown detector %q", s)
}

// Measurement is one space point as delivered by the hit source. Clusters
// holds the indices of the raw clusters the point was built from: one for
// pixel hits, two (u and v side) for strip hits.
type Measurement struct {
	Sector   string
	Layer    int
	Position Vec3
	Sigma    Vec3
	Detector Detector
	Clusters []int
}

// Hit is a measurement placed in the per-pass arena. Segment lists hold
// indices into the pass's segment arena.
type Hit struct {
	Index       int
	Measurement int // index into the cycle's measurements, -1 for the virtual hit
	Position    Vec3
	Sigma       Vec3
	Sector      string
	Layer       int
	Detector    Detector
	Clusters    []int
	Virtual     bool

	// InnerSegments are segments whose outer endpoint is this hit.
	InnerSegments []int
	// OuterSegments are segments whose inner endpoint is this hit.
	OuterSegments []int
}

// NewCycleHits builds the hit arena for one pass: the virtual hit at the
// origin is always index 0, followed by one hit per measurement in input
// order.
func NewCycleHits(ms []Measurement, origin Vec3) []Hit {
	out := make([]Hit, 0, len(ms)+1)
	out = append(out, Hit{
		Index:       0,
		Measurement: -1,
		Position:    origin,
		Sector:      VirtualSector,
		Layer:       0,
		Detector:    DetectorVirtual,
		Virtual:     true,
	})
	for i, m := range ms {
		out = append(out, Hit{
			Index:       i + 1,
			Measurement: i,
			Position:    m.Position,
			Sigma:       m.Sigma,
			Sector:      m.Sector,
			Layer:       m.Layer,
			Detector:    m.Detector,
			Clusters:    append([]int(nil), m.Clusters...),
		})
	}
	return out
}

// Key identifies one raw measurement unit for overlap detection. Hits with
// cluster references yield one key per cluster; a hit without clusters is
// keyed by its measurement index (Whole set).
type Key struct {
	Detector Detector
	Index    int
	Whole    bool
}

func (k Key) String() string {
	if k.Whole {
		return fmt.Sprintf("%s/m%d", k.Detector, k.Index)
	}
	return fmt.Sprintf("%s/c%d", k.Detector, k.Index)
}

// Less orders keys by detector, then kind, then index.
func (k Key) Less(o Key) bool {
	if k.Detector != o.Detector {
		return k.Detector < o.Detector
	}
	if k.Whole != o.Whole {
		return !k.Whole
	}
	return k.Index < o.Index
}

// Keys returns the overlap keys of h. The virtual hit has none.
func (h *Hit) Keys() []Key {
	if h.Virtual {
		return nil
	}
	if len(h.Clusters) == 0 {
		return []Key{{Detector: h.Detector, Index: h.Measurement, Whole: true}}
	}
	keys := make([]Key, 0, len(h.Clusters))
	for _, c := range h.Clusters {
		keys = append(keys, Key{Detector: h.Detector, Index: c})
	}
	return keys
}

// KeySet collects the sorted, de-duplicated keys of the given hits.
func KeySet(arena []Hit, idx []int) []Key {
	var keys []Key
	for _, i := range idx {
		keys = append(keys, arena[i].Keys()...)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a].Less(keys[b]) })
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && k == keys[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Intersects reports whether two sorted key sets share an element.
func Intersects(a, b []Key) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			return true
		case a[i].Less(b[j]):
			i++
		default:
			j++
		}
	}
	return false
}

// UnionSize returns |a ∪ b| for two sorted key sets.
func UnionSize(a, b []Key) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i].Less(b[j]):
			i++
		default:
			j++
		}
		n++
	}
	return n + (len(a) - i) + (len(b) - j)
}
