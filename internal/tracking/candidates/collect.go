package candidates

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
	"github.com/banshee-data/trackfinder/internal/tracking/segments"
)

// ErrCandidateLimit is the circuit breaker raised when a pass yields more
// candidates than allowed.
var ErrCandidateLimit = errors.New("candidate limit exceeded")

// CollectConfig holds the per-pass collector settings.
type CollectConfig struct {
	Pass          int
	MinState      int
	MinLayer      int
	MaxCandidates int // 0 disables the limit
	// FirstID numbers the first candidate. IDs run on across the passes of
	// a cycle, so FirstID also counts against MaxCandidates.
	FirstID int
}

// Seeds returns the segments candidate collection starts from, in active
// sector order and then segment index.
func Seeds(g *segments.Graph, idx *sectors.Index, cfg CollectConfig) []int {
	var out []int
	for _, sector := range idx.ActiveSectors() {
		for _, h := range idx.Hits(sector) {
			for _, si := range g.Hits[h].InnerSegments {
				s := &g.Segments[si]
				if s.Discarded || !s.Seed || s.State < cfg.MinState {
					continue
				}
				if g.Hits[s.Outer].Layer < cfg.MinLayer {
					continue
				}
				out = append(out, si)
			}
		}
	}
	return out
}

type frame struct {
	seg   int
	depth int
}

// Collect enumerates every inward path from every seed segment to a
// segment without inner neighbors. Paths follow the canonical neighbor
// lists. At a branch the continuations are visited as neighbors 2..N first
// and neighbor 1 last, and candidates are numbered in completion order.
func Collect(g *segments.Graph, idx *sectors.Index, cfg CollectConfig) ([]*Candidate, error) {
	var out []*Candidate
	var path []int
	var stack []frame
	nextID := cfg.FirstID

	for _, seed := range Seeds(g, idx, cfg) {
		stack = append(stack[:0], frame{seg: seed})
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			path = append(path[:f.depth], f.seg)

			next := g.Segments[f.seg].AllInnerNeighbors
			if len(next) == 0 {
				if cfg.MaxCandidates > 0 && nextID >= cfg.MaxCandidates {
					return out, fmt.Errorf("more than %d candidates: %w", cfg.MaxCandidates, ErrCandidateLimit)
				}
				out = append(out, commit(g, path, nextID, cfg.Pass))
				nextID++
				continue
			}
			stack = append(stack, frame{seg: next[0], depth: f.depth + 1})
			for k := len(next) - 1; k >= 1; k-- {
				stack = append(stack, frame{seg: next[k], depth: f.depth + 1})
			}
		}
	}
	return out, nil
}

func commit(g *segments.Graph, path []int, id, pass int) *Candidate {
	c := &Candidate{
		ID:       id,
		Pass:     pass,
		Arena:    g.Hits,
		Segments: append([]int(nil), path...),
		Hits:     make([]int, 0, len(path)+1),
		Alive:    true,
	}
	c.Hits = append(c.Hits, g.Segments[path[0]].Outer)
	for _, si := range path {
		c.Hits = append(c.Hits, g.Segments[si].Inner)
	}
	c.Keys = hits.KeySet(g.Hits, c.Hits)
	return c
}
