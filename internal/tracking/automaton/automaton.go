// Package automaton runs the cellular automaton over a linked segment graph.
//
// Each round has two synchronous phases. In the propagate phase every live
// segment drops inner neighbors whose state differs from its own and is
// marked for upgrade if any neighbor remains, otherwise it goes inactive.
// In the upgrade phase every marked segment increments its state. The
// automaton stops when no segment stays live. At the fixpoint a segment's
// state is the number of segments on the longest inward chain below it.
//
// Dependency rule: automaton may depend on segments only.
package automaton

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackfinder/internal/tracking/segments"
)

// ErrRoundLimit is the circuit breaker raised when the automaton needs more
// rounds than allowed.
var ErrRoundLimit = errors.New("cellular automaton round limit exceeded")

// Result summarises a completed run.
type Result struct {
	Rounds  int
	Changes int // total state increments
}

// Step performs one propagate and one upgrade phase and returns the number
// of segments still live and the number of state increments.
func Step(g *segments.Graph) (living, changes int) {
	segs := g.Segments
	for i := range segs {
		s := &segs[i]
		if s.Discarded || !s.Active {
			continue
		}
		kept := s.InnerNeighbors[:0]
		for _, n := range s.InnerNeighbors {
			// Compare against states frozen for this round: upgrades happen
			// only in the second phase.
			if segs[n].State == s.State {
				kept = append(kept, n)
			}
		}
		s.InnerNeighbors = kept
		if len(kept) > 0 {
			s.UpgradePending = true
			living++
		} else {
			s.Active = false
		}
	}
	for i := range segs {
		s := &segs[i]
		if s.UpgradePending {
			s.State++
			s.UpgradePending = false
			changes++
		}
	}
	return living, changes
}

// Run iterates Step until no segment is live. It fails with ErrRoundLimit
// when a further round would exceed maxRounds; a non-positive maxRounds
// disables the limit.
func Run(g *segments.Graph, maxRounds int) (Result, error) {
	var res Result
	for {
		if maxRounds > 0 && res.Rounds >= maxRounds {
			return res, fmt.Errorf("%d rounds: %w", res.Rounds, ErrRoundLimit)
		}
		res.Rounds++
		living, changes := Step(g)
		res.Changes += changes
		if living == 0 {
			return res, nil
		}
	}
}
