package overlap

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/trackfinder/internal/tracking/candidates"
)

// Weights builds the symmetric interaction matrix: (1-omega)/(n-1) between
// compatible candidates, -1 between conflicting ones, zero on the diagonal.
// allConflict reports whether every pair conflicts.
func Weights(cs []*candidates.Candidate, omega float64) (w *mat.SymDense, allConflict bool) {
	n := len(cs)
	w = mat.NewSymDense(n, nil)
	if n < 2 {
		return w, false
	}
	compat := (1 - omega) / float64(n-1)
	allConflict = true
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if cs[i].Conflicts(cs[j]) {
				w.SetSym(i, j, -1)
			} else {
				w.SetSym(i, j, compat)
				allConflict = false
			}
		}
	}
	return w, allConflict
}

// Relax runs the relaxation network over cs and reports which candidates
// end above the acceptance cutoff, plus the number of sweeps taken. It
// does not modify the candidates. When all candidates conflict pairwise
// only the best one (first on a tie) is accepted without iterating.
func Relax(cs []*candidates.Candidate, cfg Config, rng *rand.Rand) (accepted []bool, sweeps int) {
	n := len(cs)
	accepted = make([]bool, n)
	if n == 0 {
		return accepted, 0
	}
	w, allConflict := Weights(cs, cfg.Omega)
	if allConflict || n == 1 {
		best := 0
		for i, c := range cs {
			if c.Quality > cs[best].Quality {
				best = i
			}
		}
		accepted[best] = true
		return accepted, 0
	}

	x := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.SetVec(i, rng.Float64())
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	prev := make([]float64, n)
	t := cfg.TemperatureStart

	for sweeps < cfg.MaxSweeps {
		copy(prev, x.RawVector().Data)
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		for _, i := range order {
			act := cs[i].Quality
			for j := 0; j < n; j++ {
				act += w.At(i, j) * x.AtVec(j)
			}
			x.SetVec(i, 0.5*(1+math.Tanh(act/t)))
		}
		sweeps++
		t = 0.5 * (t + cfg.TemperatureFloor)
		if floats.Distance(prev, x.RawVector().Data, math.Inf(1)) < cfg.ConvergenceThreshold {
			break
		}
	}

	for i := 0; i < n; i++ {
		accepted[i] = x.AtVec(i) > cfg.AcceptanceCutoff
	}
	return accepted, sweeps
}
