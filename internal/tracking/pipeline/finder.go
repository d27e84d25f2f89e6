package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/trackfinder/internal/tracking/automaton"
	"github.com/banshee-data/trackfinder/internal/tracking/candidates"
	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/fit"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/overlap"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
	"github.com/banshee-data/trackfinder/internal/tracking/segments"
)

// Event is the input of one cycle.
type Event struct {
	ID           int64
	Measurements []hits.Measurement
}

// Result is the outcome of one cycle. An aborted cycle has no tracks.
type Result struct {
	EventID     int64
	Aborted     bool
	AbortReason string
	Tracks      []Track
	Stats       Stats
}

// IsAbort reports whether err is one of the circuit breakers that abort a
// cycle.
func IsAbort(err error) bool {
	return errors.Is(err, segments.ErrSegmentLimit) ||
		errors.Is(err, automaton.ErrRoundLimit) ||
		errors.Is(err, candidates.ErrCandidateLimit) ||
		errors.Is(err, overlap.ErrResidualOverlap)
}

// Finder runs cycles for a fixed set of passes. It is immutable after New
// and safe for concurrent use when its fit.Service is.
type Finder struct {
	cfg    Config
	fitter fit.Service
	passes []Pass
	geo    filters.Geometry
}

// New validates the configuration and every pass's sector map. Sector maps
// are widened by their pass's TuneCutoffs here, once.
func New(cfg Config, fitter fit.Service, passes ...Pass) (*Finder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(passes) == 0 {
		return nil, errors.New("no passes configured")
	}
	if fitter == nil {
		fitter = fit.CircleFitter{}
	}
	f := &Finder{
		cfg:    cfg,
		fitter: fitter,
		geo:    filters.Geometry{Origin: cfg.Origin, BField: cfg.BField},
	}
	for _, p := range passes {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("pass %q: %w", p.Name, err)
		}
		if p.Config.TuneCutoffs != 0 {
			p.Map = p.Map.Widen(p.Config.TuneCutoffs)
		}
		f.passes = append(f.passes, p)
	}
	return f, nil
}

// Passes returns the configured passes.
func (f *Finder) Passes() []Pass { return f.passes }

// ProcessEvent runs one cycle. Any circuit breaker aborts the whole cycle;
// the returned Result then carries no tracks and Stats.Aborts is 1.
func (f *Finder) ProcessEvent(ev Event) Result {
	res := Result{EventID: ev.ID}
	res.Stats.Rejected = make(map[string]int)

	tracks, err := f.cycle(ev, &res.Stats)
	if err != nil {
		res.Aborted = true
		res.AbortReason = err.Error()
		res.Stats.Aborts = 1
		if IsAbort(err) {
			opsf("event %d aborted: %v", ev.ID, err)
		} else {
			opsf("event %d failed: %v", ev.ID, err)
		}
		return res
	}
	res.Tracks = tracks
	res.Stats.Tracks = len(tracks)
	diagf("event %d: hits=%d segments=%d candidates=%d tracks=%d overlap=%s",
		ev.ID, res.Stats.Hits, res.Stats.Segments, res.Stats.Candidates, len(tracks), res.Stats.OverlapMode)
	return res
}

func (f *Finder) cycle(ev Event, st *Stats) ([]Track, error) {
	st.Hits = len(ev.Measurements)
	rng := rand.New(rand.NewSource(f.cfg.Seed ^ ev.ID))
	o := candidates.NewOwnership()
	nextID := 0
	for pi, p := range f.passes {
		cs, err := f.runPass(pi, p, ev, rng, nextID, st)
		if err != nil {
			return nil, fmt.Errorf("pass %q: %w", p.Name, err)
		}
		nextID += len(cs)
		o.Add(cs...)
	}

	rep, err := overlap.NewResolver(f.cfg.Overlap, rng).Resolve(o)
	st.addOverlap(rep)
	if err != nil {
		return nil, err
	}

	alive := o.Alive()
	tracks := make([]Track, 0, len(alive))
	for _, c := range alive {
		tracks = append(tracks, newTrack(ev.ID, f.passes[c.Pass].Name, c))
	}
	return tracks, nil
}

func (f *Finder) runPass(pi int, p Pass, ev Event, rng *rand.Rand, firstID int, st *Stats) ([]*candidates.Candidate, error) {
	pc := p.Config
	arena := hits.NewCycleHits(ev.Measurements, f.cfg.Origin)
	idx := sectors.NewIndex(p.Map, arena, pc.HighestLayer)
	st.OutOfRange += idx.OutOfRange

	scfg := segments.Config{
		SegmentFilters:     pc.SegmentFilters,
		NeighborFilters:    pc.NeighborFilters,
		MinSegmentFilters:  pc.MinSegmentFilters,
		MinNeighborFilters: pc.MinNeighborFilters,
		HighestLayer:       pc.HighestLayer,
		MaxActiveSegments:  f.cfg.MaxActiveSegments,
		Geometry:           f.geo,
		ActiveBefore:       st.SurvivingSegments,
	}
	g, bs, err := segments.Build(idx, arena, scfg)
	st.addBuild(bs)
	if err != nil {
		return nil, err
	}
	ls, err := g.Link(idx, scfg)
	st.addLink(ls)
	if err != nil {
		return nil, err
	}
	if f.cfg.VerifyGraph {
		if err := g.VerifyAcyclic(); err != nil {
			return nil, err
		}
	}

	ar, err := automaton.Run(g, f.cfg.MaxRounds)
	st.Rounds += ar.Rounds
	if err != nil {
		return nil, err
	}

	cs, err := candidates.Collect(g, idx, candidates.CollectConfig{
		Pass:          pi,
		MinState:      pc.MinState,
		MinLayer:      pc.MinLayer,
		MaxCandidates: f.cfg.MaxCandidates,
		FirstID:       firstID,
	})
	st.Candidates += len(cs)
	if err != nil {
		return nil, err
	}

	fcfg := candidates.FilterConfig{
		TrackFilters:      pc.TrackFilters,
		Fitter:            f.fitter,
		MinFitProbability: f.cfg.MinFitProbability,
		StoreFailedFits:   f.cfg.StoreFailedFits,
		Geometry:          f.geo,
		TotalLayers:       pc.TotalLayers,
	}
	if f.cfg.QualityMode == QualityLength {
		lq := fit.LengthQuality{TotalLayers: pc.TotalLayers, SetupWeight: pc.SetupWeight}
		if pc.QISmear {
			lq.Smear = &fit.Smear{Mean: pc.SmearMean, Sigma: pc.SmearSigma, Rand: rng}
		}
		fcfg.Fitter = lq
		fcfg.TotalLayers = 0
	}
	fs := candidates.Filter(idx, cs, fcfg, nil)
	st.addFilter(fs)

	tracef("event %d pass %s: segments=%d/%d links=%d rounds=%d candidates=%d survived=%d",
		ev.ID, p.Name, ls.Surviving, bs.Created, ls.Links, ar.Rounds, len(cs), fs.Survived)
	return cs, nil
}

// ProcessEvents runs independent cycles on up to workers goroutines and
// returns results in input order. Cancelling ctx stops scheduling further
// events; already started cycles finish.
func (f *Finder) ProcessEvents(ctx context.Context, events []Event, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(events))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range events {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = f.ProcessEvent(events[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
