// Package overlap selects a conflict-free subset of track candidates.
//
// Candidates conflict when they share a raw measurement. Only candidates
// that conflict with at least one other live candidate are considered. A
// subset-absorption pass removes redundant discoveries first, then exactly
// two candidates are settled by a duel and larger sets by either a greedy
// pass or a Hopfield-style relaxation network. Mode none skips both and
// leaves the conflicts in place.
//
// Dependency rule: overlap may depend on hits and candidates only.
package overlap

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/banshee-data/trackfinder/internal/tracking/candidates"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

// ErrResidualOverlap is returned when the relaxation network keeps leaving
// overlapping survivors and the fallback policy is FallbackAbort.
var ErrResidualOverlap = errors.New("residual overlap after relaxation")

// Mode selects the resolver for more than two overlapping candidates.
// ModeNone disables resolution, duels included.
type Mode string

const (
	ModeGreedy     Mode = "greedy"
	ModeRelaxation Mode = "relaxation"
	ModeNone       Mode = "none"
)

// Fallback is applied when relaxation reruns are exhausted.
type Fallback string

const (
	FallbackGreedy Fallback = "greedy"
	FallbackDrop   Fallback = "drop"
	FallbackAbort  Fallback = "abort"
)

// Config holds the resolver settings.
type Config struct {
	Mode  Mode
	Clean bool

	Omega                float64
	TemperatureStart     float64
	TemperatureFloor     float64
	ConvergenceThreshold float64
	AcceptanceCutoff     float64
	MaxSweeps            int
	MaxReruns            int
	Fallback             Fallback
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeRelaxation,
		Clean:                true,
		Omega:                0.5,
		TemperatureStart:     3.1,
		TemperatureFloor:     0.1,
		ConvergenceThreshold: 0.05,
		AcceptanceCutoff:     0.7,
		MaxSweeps:            200,
		MaxReruns:            3,
		Fallback:             FallbackGreedy,
	}
}

// Validate rejects settings the resolver cannot run with.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeGreedy, ModeRelaxation, ModeNone:
	default:
		return fmt.Errorf("unknown overlap mode %q", c.Mode)
	}
	switch c.Fallback {
	case FallbackGreedy, FallbackDrop, FallbackAbort:
	default:
		return fmt.Errorf("unknown overlap fallback %q", c.Fallback)
	}
	if c.Mode == ModeRelaxation {
		if c.TemperatureStart <= 0 || c.TemperatureFloor <= 0 {
			return fmt.Errorf("temperatures must be positive, got start %v floor %v", c.TemperatureStart, c.TemperatureFloor)
		}
		if c.ConvergenceThreshold <= 0 {
			return fmt.Errorf("convergence_threshold must be positive, got %v", c.ConvergenceThreshold)
		}
		if c.MaxSweeps <= 0 {
			return fmt.Errorf("max_sweeps must be positive, got %d", c.MaxSweeps)
		}
	}
	if c.MaxReruns < 0 {
		return fmt.Errorf("max_reruns must be non-negative, got %d", c.MaxReruns)
	}
	return nil
}

// Report describes one resolution.
type Report struct {
	Overlapping int
	Cleaned     int
	Mode        string
	Deactivated int
	Sweeps      int
	Reruns      int
	// ZeroSurvivors counts relaxation runs that accepted nobody.
	ZeroSurvivors int
	// ResidualOverlap is set when reruns were exhausted and the fallback
	// policy had to settle the remaining conflicts.
	ResidualOverlap bool
	// Unresolved counts overlapping candidates left alive by ModeNone.
	Unresolved int
	Survivors  int
}

// Resolver runs overlap resolution with an injected random source.
type Resolver struct {
	cfg Config
	rng *rand.Rand
}

// NewResolver returns a resolver; a nil rng uses a fixed seed.
func NewResolver(cfg Config, rng *rand.Rand) *Resolver {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Resolver{cfg: cfg, rng: rng}
}

// Resolve deactivates candidates through o until no two live candidates
// conflict. It fails only with ErrResidualOverlap under FallbackAbort, in
// which case overlaps remain.
func (r *Resolver) Resolve(o *candidates.Ownership) (Report, error) {
	set := o.Overlapping()
	rep := Report{Overlapping: len(set), Mode: "none"}

	if r.cfg.Clean && len(set) > 2 {
		rep.Cleaned = Clean(o, set)
		set = o.Overlapping()
	}

	var err error
	switch {
	case len(set) < 2:
	case r.cfg.Mode == ModeNone:
		rep.Unresolved = len(set)
	case len(set) == 2:
		rep.Mode = "duel"
		Duel(o, set[0], set[1])
		rep.Deactivated++
	case r.cfg.Mode == ModeGreedy:
		rep.Mode = string(ModeGreedy)
		rep.Deactivated += Greedy(o, set)
	default:
		rep.Mode = string(ModeRelaxation)
		err = r.relaxation(o, set, &rep)
	}
	rep.Survivors = len(o.Alive())
	return rep, err
}

// Duel keeps the better of two conflicting candidates; a tie keeps b.
func Duel(o *candidates.Ownership, a, b *candidates.Candidate) {
	if a.Quality <= b.Quality {
		o.Kill(a, candidates.RejectOverlap)
		b.Reserved = true
		return
	}
	o.Kill(b, candidates.RejectOverlap)
	a.Reserved = true
}

// Greedy walks cs by descending quality (stable for ties), reserving each
// live candidate and deactivating its live rivals. It returns the number of
// deactivations.
func Greedy(o *candidates.Ownership, cs []*candidates.Candidate) int {
	candidates.AssignRivals(cs)
	order := append([]*candidates.Candidate(nil), cs...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Quality > order[j].Quality })

	killed := 0
	for _, c := range order {
		if !c.Alive {
			continue
		}
		c.Reserved = true
		for _, rival := range c.Rivals {
			if !rival.Alive {
				continue
			}
			loser := rival
			if rival.Quality > c.Quality {
				loser = c
			}
			o.Kill(loser, candidates.RejectOverlap)
			killed++
			if loser == c {
				c.Reserved = false
				break
			}
		}
	}
	return killed
}

// Clean deactivates candidates whose keys are contained in a conflicting
// rival's keys: a strict subset always loses, of two identical sets the
// lower quality loses (the later one on a tie). It repeats until a pass
// changes nothing and returns the number of deactivations.
func Clean(o *candidates.Ownership, cs []*candidates.Candidate) int {
	total := 0
	for {
		n := 0
		for i, a := range cs {
			if !a.Alive {
				continue
			}
			for _, b := range cs[i+1:] {
				if !b.Alive || !a.Conflicts(b) {
					continue
				}
				u := hits.UnionSize(a.Keys, b.Keys)
				if u > len(a.Keys) && u > len(b.Keys) {
					continue
				}
				loser := b
				switch {
				case len(a.Keys) < len(b.Keys):
					loser = a
				case len(a.Keys) == len(b.Keys) && a.Quality < b.Quality:
					loser = a
				}
				o.Kill(loser, candidates.RejectOverlap)
				n++
				if loser == a {
					break
				}
			}
		}
		total += n
		if n == 0 {
			return total
		}
	}
}

func (r *Resolver) relaxation(o *candidates.Ownership, set []*candidates.Candidate, rep *Report) error {
	for attempt := 0; ; attempt++ {
		accepted, sweeps := Relax(set, r.cfg, r.rng)
		rep.Sweeps += sweeps

		survivors := 0
		for _, ok := range accepted {
			if ok {
				survivors++
			}
		}
		if survivors == 0 {
			rep.ZeroSurvivors++
			if attempt < r.cfg.MaxReruns {
				rep.Reruns++
				continue
			}
			return r.fallback(o, set, rep)
		}

		for i, c := range set {
			if !accepted[i] {
				o.Kill(c, candidates.RejectOverlap)
				rep.Deactivated++
			}
		}
		residual := residualOverlap(o, set)
		if len(residual) == 0 {
			return nil
		}
		if attempt < r.cfg.MaxReruns {
			rep.Reruns++
			set = residual
			continue
		}
		return r.fallback(o, residual, rep)
	}
}

func residualOverlap(o *candidates.Ownership, set []*candidates.Candidate) []*candidates.Candidate {
	var out []*candidates.Candidate
	for _, c := range set {
		if o.Shared(c) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) fallback(o *candidates.Ownership, set []*candidates.Candidate, rep *Report) error {
	rep.ResidualOverlap = true
	switch r.cfg.Fallback {
	case FallbackDrop:
		for _, c := range set {
			if c.Alive {
				o.Kill(c, candidates.RejectOverlap)
				rep.Deactivated++
			}
		}
		return nil
	case FallbackAbort:
		return fmt.Errorf("%d candidates still overlap after %d reruns: %w", len(set), rep.Reruns, ErrResidualOverlap)
	default:
		rep.Deactivated += Greedy(o, set)
		return nil
	}
}
