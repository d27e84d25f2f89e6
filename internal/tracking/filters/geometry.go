package filters

import (
	"math"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// Reason explains why a filter value could not be computed.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonCollinear      Reason = "collinear"
	ReasonZeroLength     Reason = "zero-length"
	ReasonUndefinedAngle Reason = "undefined-angle"
	ReasonTooFewHits     Reason = "too-few-hits"
	ReasonUnknownKind    Reason = "unknown-kind"
)

// collinearTolerance bounds the sine of the opening angle below which three
// points are treated as lying on a straight line.
const collinearTolerance = 1e-9

// Verdict is the outcome of one filter evaluation.
type Verdict struct {
	Kind   Kind
	Value  float64
	Passed bool
	Reason Reason
}

// Inconclusive reports whether the value could not be computed.
func (v Verdict) Inconclusive() bool { return v.Reason != ReasonNone }

// Geometry carries the event-wide constants the filters need.
type Geometry struct {
	Origin hits.Vec3
	BField float64 // tesla
}

// PTFromRadius converts a transverse radius in cm to GeV/c.
func (g Geometry) PTFromRadius(r float64) float64 {
	return 0.003 * g.BField * r
}

// Evaluate computes the filter value for pts (ordered outer to inner) and
// checks it against cut.
func (g Geometry) Evaluate(k Kind, cut Cutoff, pts ...hits.Vec3) Verdict {
	v, reason := g.Value(k, pts...)
	if reason != ReasonNone {
		return Verdict{Kind: k, Reason: reason}
	}
	return Verdict{Kind: k, Value: v, Passed: cut.Accepts(k, v)}
}

// Value computes the raw filter value for pts ordered outer to inner.
func (g Geometry) Value(k Kind, pts ...hits.Vec3) (float64, Reason) {
	a := k.Arity()
	if a <= 0 {
		return 0, ReasonUnknownKind
	}
	if len(pts) != a {
		return 0, ReasonTooFewHits
	}
	switch k {
	case Distance3D:
		return pts[0].Sub(pts[1]).Mag(), ReasonNone
	case DistanceXY:
		return pts[0].Sub(pts[1]).MagXY(), ReasonNone
	case DistanceZ:
		return math.Abs(pts[0].Z - pts[1].Z), ReasonNone
	case NormedDistance3D:
		d := pts[0].Sub(pts[1])
		l := d.Mag()
		if l == 0 {
			return 0, ReasonZeroLength
		}
		xy := d.MagXY()
		return (xy * xy) / (l * l), ReasonNone
	case SlopeRZ:
		d := pts[0].Sub(pts[1])
		if d.Mag() == 0 {
			return 0, ReasonZeroLength
		}
		return math.Atan2(d.MagXY(), d.Z), ReasonNone

	case Angles3D:
		return openingAngle(pts[1].Sub(pts[2]), pts[0].Sub(pts[1]))
	case AnglesXY:
		return openingAngle(pts[1].Sub(pts[2]).XY(), pts[0].Sub(pts[1]).XY())
	case AnglesRZ:
		return openingAngle(pts[1].RZ().Sub(pts[2].RZ()), pts[0].RZ().Sub(pts[1].RZ()))
	case DeltaSlopeRZ:
		outer, inner := pts[0].Sub(pts[1]), pts[1].Sub(pts[2])
		if outer.Mag() == 0 || inner.Mag() == 0 {
			return 0, ReasonZeroLength
		}
		return math.Atan2(outer.MagXY(), outer.Z) - math.Atan2(inner.MagXY(), inner.Z), ReasonNone
	case Distance2IP:
		c, r, reason := Circle(pts[0], pts[1], pts[2])
		if reason != ReasonNone {
			return 0, reason
		}
		return math.Abs(c.Sub(g.Origin).MagXY() - r), ReasonNone
	case PT:
		_, r, reason := Circle(pts[0], pts[1], pts[2])
		if reason != ReasonNone {
			return 0, reason
		}
		return g.PTFromRadius(r), ReasonNone
	case HelixFit:
		return helixMismatch(pts[0], pts[1], pts[2])

	case DeltaPT:
		p1, reason := g.Value(PT, pts[0], pts[1], pts[2])
		if reason != ReasonNone {
			return 0, reason
		}
		p2, reason := g.Value(PT, pts[1], pts[2], pts[3])
		if reason != ReasonNone {
			return 0, reason
		}
		return math.Abs(p1 - p2), ReasonNone
	case DeltaDistance2IP:
		d1, reason := g.Value(Distance2IP, pts[0], pts[1], pts[2])
		if reason != ReasonNone {
			return 0, reason
		}
		d2, reason := g.Value(Distance2IP, pts[1], pts[2], pts[3])
		if reason != ReasonNone {
			return 0, reason
		}
		return math.Abs(d1 - d2), ReasonNone
	}
	return 0, ReasonUnknownKind
}

func openingAngle(u, v hits.Vec3) (float64, Reason) {
	lu, lv := u.Mag(), v.Mag()
	if lu == 0 || lv == 0 {
		return 0, ReasonZeroLength
	}
	c := u.Dot(v) / (lu * lv)
	if math.IsNaN(c) {
		return 0, ReasonUndefinedAngle
	}
	return math.Acos(math.Max(-1, math.Min(1, c))), ReasonNone
}

// Circle returns the transverse circle through a, b and c.
func Circle(a, b, c hits.Vec3) (center hits.Vec3, radius float64, reason Reason) {
	ab, ac := b.Sub(a).XY(), c.Sub(a).XY()
	lab, lac := ab.Mag(), ac.Mag()
	if lab == 0 || lac == 0 || b.Sub(c).MagXY() == 0 {
		return hits.Vec3{}, 0, ReasonZeroLength
	}
	cross := ab.CrossZ(ac)
	if math.Abs(cross) <= collinearTolerance*lab*lac {
		return hits.Vec3{}, 0, ReasonCollinear
	}
	// Solve relative to a for numerical stability.
	d := 2 * cross
	sb, sc := lab*lab, lac*lac
	ux := (ac.Y*sb - ab.Y*sc) / d
	uy := (ab.X*sc - ac.X*sb) / d
	center = hits.Vec3{X: a.X + ux, Y: a.Y + uy}
	return center, math.Hypot(ux, uy), ReasonNone
}

// CurvatureSign is +1 for counter-clockwise bending of the path
// inner→center→outer in the transverse plane, -1 for clockwise and 0 for a
// straight line.
func CurvatureSign(outer, center, inner hits.Vec3) int {
	u, v := center.Sub(inner).XY(), outer.Sub(center).XY()
	cross := u.CrossZ(v)
	if math.Abs(cross) <= collinearTolerance*u.Mag()*v.Mag() {
		return 0
	}
	if cross > 0 {
		return 1
	}
	return -1
}

// Charge estimates the particle charge sign for a field along +z.
func (g Geometry) Charge(outer, center, inner hits.Vec3) int {
	s := CurvatureSign(outer, center, inner)
	if g.BField < 0 {
		return s
	}
	return -s
}

func helixMismatch(a, b, c hits.Vec3) (float64, Reason) {
	u, _, reason := Circle(a, b, c)
	if reason != ReasonNone {
		return 0, reason
	}
	phi := func(p hits.Vec3) float64 { return math.Atan2(p.Y-u.Y, p.X-u.X) }
	dphiInner := wrapAngle(phi(b) - phi(c))
	dphiOuter := wrapAngle(phi(a) - phi(b))
	if dphiInner == 0 || dphiOuter == 0 {
		return 0, ReasonUndefinedAngle
	}
	return math.Abs((b.Z-c.Z)/dphiInner - (a.Z-b.Z)/dphiOuter), ReasonNone
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// ZigZag checks that the curvature sign along pts (ordered outer to inner)
// never flips. ZigZagXY works in the transverse plane, ZigZagRZ in (r, z).
// Straight triples are ignored. Value is the number of sign changes.
func ZigZag(k Kind, pts []hits.Vec3) Verdict {
	if k != ZigZagXY && k != ZigZagRZ {
		return Verdict{Kind: k, Reason: ReasonUnknownKind}
	}
	if len(pts) < 3 {
		return Verdict{Kind: k, Reason: ReasonTooFewHits}
	}
	project := func(p hits.Vec3) hits.Vec3 { return p.XY() }
	if k == ZigZagRZ {
		project = func(p hits.Vec3) hits.Vec3 { return p.RZ() }
	}
	changes, last := 0, 0
	for i := 0; i+2 < len(pts); i++ {
		s := CurvatureSign(project(pts[i]), project(pts[i+1]), project(pts[i+2]))
		if s == 0 {
			continue
		}
		if last != 0 && s != last {
			changes++
		}
		last = s
	}
	return Verdict{Kind: k, Value: float64(changes), Passed: changes == 0}
}
