package pipeline

import (
	"github.com/banshee-data/trackfinder/internal/tracking/candidates"
	"github.com/banshee-data/trackfinder/internal/tracking/overlap"
	"github.com/banshee-data/trackfinder/internal/tracking/segments"
)

// Stats holds the counters of one cycle, summed over its passes.
type Stats struct {
	Hits       int
	OutOfRange int

	Segments          int
	SegmentsDiscarded int
	// SegmentsOrdering counts hit pairs skipped because the inner hit was
	// not closer to the origin.
	SegmentsOrdering  int
	Links             int
	LinksRejected     int
	SurvivingSegments int
	IsolatedSegments  int
	Inconclusive      int
	Rounds            int

	Candidates  int
	Survived    int
	Rejected    map[string]int
	FitFailures int
	NoCutoff    int

	Overlapping     int
	Cleaned         int
	OverlapMode     string
	Sweeps          int
	Reruns          int
	ResidualOverlap bool
	Unresolved      int
	Tracks          int

	Aborts int
}

func (s *Stats) addBuild(b segments.BuildStats) {
	s.Segments += b.Created
	s.SegmentsDiscarded += b.Discarded
	s.SegmentsOrdering += b.DiscardedOrdering
	s.Inconclusive += b.Inconclusive
}

func (s *Stats) addLink(l segments.LinkStats) {
	s.Links += l.Links
	s.LinksRejected += l.Rejected
	s.Inconclusive += l.Inconclusive
	s.IsolatedSegments += l.Discarded
	s.SurvivingSegments += l.Surviving
}

func (s *Stats) addFilter(f candidates.FilterStats) {
	s.Survived += f.Survived
	s.FitFailures += f.FitFailures
	s.Inconclusive += f.Inconclusive
	s.NoCutoff += f.NoCutoff
	if s.Rejected == nil {
		s.Rejected = make(map[string]int)
	}
	for k, v := range f.Rejected {
		s.Rejected[k] += v
	}
}

func (s *Stats) addOverlap(r overlap.Report) {
	s.Overlapping += r.Overlapping
	s.Cleaned += r.Cleaned
	s.OverlapMode = r.Mode
	s.Sweeps += r.Sweeps
	s.Reruns += r.Reruns
	s.ResidualOverlap = s.ResidualOverlap || r.ResidualOverlap
	s.Unresolved += r.Unresolved
	if s.Rejected == nil {
		s.Rejected = make(map[string]int)
	}
	s.Rejected[candidates.RejectOverlap] += r.Deactivated + r.Cleaned
}

// Add accumulates o into s. OverlapMode keeps the latest non-empty value.
func (s *Stats) Add(o Stats) {
	s.Hits += o.Hits
	s.OutOfRange += o.OutOfRange
	s.Segments += o.Segments
	s.SegmentsDiscarded += o.SegmentsDiscarded
	s.SegmentsOrdering += o.SegmentsOrdering
	s.Links += o.Links
	s.LinksRejected += o.LinksRejected
	s.SurvivingSegments += o.SurvivingSegments
	s.IsolatedSegments += o.IsolatedSegments
	s.Inconclusive += o.Inconclusive
	s.Rounds += o.Rounds
	s.Candidates += o.Candidates
	s.Survived += o.Survived
	s.FitFailures += o.FitFailures
	s.NoCutoff += o.NoCutoff
	s.Overlapping += o.Overlapping
	s.Cleaned += o.Cleaned
	if o.OverlapMode != "" {
		s.OverlapMode = o.OverlapMode
	}
	s.Sweeps += o.Sweeps
	s.Reruns += o.Reruns
	s.ResidualOverlap = s.ResidualOverlap || o.ResidualOverlap
	s.Unresolved += o.Unresolved
	s.Tracks += o.Tracks
	s.Aborts += o.Aborts
	if len(o.Rejected) > 0 && s.Rejected == nil {
		s.Rejected = make(map[string]int, len(o.Rejected))
	}
	for k, v := range o.Rejected {
		s.Rejected[k] += v
	}
}

// Summary aggregates results over many cycles.
type Summary struct {
	Events int
	Totals Stats
}

// Add folds one cycle result into the summary.
func (s *Summary) Add(r Result) {
	s.Events++
	s.Totals.Add(r.Stats)
}
