// Package fit provides the track-fit service used to score candidates.
//
// Dependency rule: fit may depend on hits only. The candidate filter only
// sees the Service interface, so any fitter with the same contract can be
// plugged in.
package fit

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

var (
	// ErrTooFewHits is returned when a track has fewer real hits than the
	// fit has parameters.
	ErrTooFewHits = errors.New("too few hits to fit")
	// ErrDegenerate is returned when the hits admit no unique solution,
	// e.g. a perfectly straight track for a circle fit.
	ErrDegenerate = errors.New("degenerate fit")
)

// Result is the outcome of a successful fit.
type Result struct {
	Probability float64
	ChiSquare   float64
	NDF         int
	Radius      float64 // transverse radius in cm, 0 when not estimated
	Center      hits.Vec3
}

// Service scores an ordered hit sequence (outer to inner). A failed fit is
// reported as an error and treated as a rejection by the caller.
type Service interface {
	Fit(track []hits.Hit) (Result, error)
}

// DefaultMinSigma is the resolution floor in cm used when a hit carries no
// usable uncertainty.
const DefaultMinSigma = 0.001

// UnconstrainedProbability is reported for a fit without degrees of
// freedom: three points always lie on a circle, so the residuals say
// nothing about the track.
const UnconstrainedProbability = 0.5

// CircleFitter is a linear least-squares circle fit in the transverse plane
// (x² + y² + Dx + Ey + F = 0). Virtual hits are ignored.
type CircleFitter struct {
	MinSigma float64
}

// Fit implements Service.
func (f CircleFitter) Fit(track []hits.Hit) (Result, error) {
	pts := realHits(track)
	n := len(pts)
	if n < 3 {
		return Result{}, ErrTooFewHits
	}

	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, h := range pts {
		x, y := h.Position.X, h.Position.Y
		a.Set(i, 0, x)
		a.Set(i, 1, y)
		a.Set(i, 2, 1)
		b.SetVec(i, -(x*x + y*y))
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return Result{}, ErrDegenerate
	}
	d, e, c := sol.AtVec(0), sol.AtVec(1), sol.AtVec(2)
	center := hits.Vec3{X: -d / 2, Y: -e / 2}
	r2 := center.X*center.X + center.Y*center.Y - c
	if r2 <= 0 || math.IsNaN(r2) || math.IsInf(r2, 0) {
		return Result{}, ErrDegenerate
	}
	radius := math.Sqrt(r2)

	minSigma := f.MinSigma
	if minSigma <= 0 {
		minSigma = DefaultMinSigma
	}
	pulls := make([]float64, n)
	for i, h := range pts {
		sigma := math.Max(h.Sigma.MagXY(), minSigma)
		pulls[i] = (h.Position.Sub(center).MagXY() - radius) / sigma
	}
	chi2 := floats.Dot(pulls, pulls)
	ndf := n - 3

	res := Result{ChiSquare: chi2, NDF: ndf, Radius: radius, Center: center, Probability: UnconstrainedProbability}
	if ndf > 0 {
		res.Probability = distuv.ChiSquared{K: float64(ndf)}.Survival(chi2)
	}
	return res, nil
}

// LengthQuality scores a track by the fraction of layers it covers, weighted
// down by the setup weight (percent) of the pass. A non-nil Smear perturbs
// every score.
type LengthQuality struct {
	TotalLayers int
	SetupWeight float64
	Smear       *Smear
}

// Fit implements Service.
func (q LengthQuality) Fit(track []hits.Hit) (Result, error) {
	n := len(realHits(track))
	if n == 0 {
		return Result{}, ErrTooFewHits
	}
	layers := q.TotalLayers
	if layers <= 0 {
		layers = n
	}
	base := 1 - q.SetupWeight/100
	if q.Smear != nil {
		base += q.Smear.Draw()
	}
	p := base * 0.5 * float64(n) / (2 * float64(layers))
	return Result{Probability: math.Max(0, math.Min(1, p))}, nil
}

// MaxSmear bounds a single smear draw in both directions.
const MaxSmear = 0.4

// Smear draws Gaussian perturbations from Rand. It is not safe for
// concurrent use; give each cycle its own.
type Smear struct {
	Mean  float64
	Sigma float64
	Rand  *rand.Rand
}

// Draw returns the next perturbation, clamped to ±MaxSmear.
func (s *Smear) Draw() float64 {
	v := s.Mean + s.Sigma*s.Rand.NormFloat64()
	return math.Max(-MaxSmear, math.Min(MaxSmear, v))
}

func realHits(track []hits.Hit) []hits.Hit {
	out := make([]hits.Hit, 0, len(track))
	for _, h := range track {
		if !h.Virtual {
			out = append(out, h)
		}
	}
	return out
}
