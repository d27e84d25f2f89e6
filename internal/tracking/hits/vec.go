package hits

import "math"

// Vec3 is a position or direction in detector coordinates (cm).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Mag is the Euclidean length.
func (v Vec3) Mag() float64 { return math.Sqrt(v.Dot(v)) }

// MagXY is the length of the transverse projection.
func (v Vec3) MagXY() float64 { return math.Hypot(v.X, v.Y) }

// XY returns the transverse projection (Z zeroed).
func (v Vec3) XY() Vec3 { return Vec3{X: v.X, Y: v.Y} }

// RZ maps the vector into the (r, z) plane, with r stored in X.
func (v Vec3) RZ() Vec3 { return Vec3{X: v.MagXY(), Y: v.Z} }

// CrossZ is the z component of v × o, i.e. the signed area of the
// transverse parallelogram.
func (v Vec3) CrossZ(o Vec3) float64 { return v.X*o.Y - v.Y*o.X }
