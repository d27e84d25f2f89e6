package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/overlap"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
)

// Quality modes select how candidate quality is computed.
const (
	QualityFit    = "fit"
	QualityLength = "length"
)

// Config holds the settings shared by every pass of a cycle.
type Config struct {
	MaxRounds         int // cellular automaton round cap; 0 disables
	MaxActiveSegments int
	MaxCandidates     int
	BField            float64 // tesla
	Origin            hits.Vec3
	QualityMode       string
	MinFitProbability float64
	StoreFailedFits   bool
	VerifyGraph       bool
	// Seed is mixed with the event ID to seed the relaxation network.
	Seed    int64
	Overlap overlap.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRounds:         30,
		MaxActiveSegments: 50000,
		MaxCandidates:     20000,
		BField:            1.5,
		QualityMode:       QualityFit,
		Overlap:           overlap.DefaultConfig(),
	}
}

// PassConfig holds the settings of one pass.
type PassConfig struct {
	HighestLayer int
	MinLayer     int
	MinState     int
	TotalLayers  int
	SetupWeight  float64

	// QISmear perturbs length qualities with a Gaussian draw from the
	// cycle's random source (SmearMean, SmearSigma, clamped to
	// ±fit.MaxSmear).
	QISmear    bool
	SmearMean  float64
	SmearSigma float64

	MinSegmentFilters  int
	MinNeighborFilters int
	// TuneCutoffs widens every cutoff of the pass's sector map by this
	// percentage before the first cycle.
	TuneCutoffs float64

	SegmentFilters  []filters.Kind
	NeighborFilters []filters.Kind
	TrackFilters    []filters.Kind
}

// Pass is a named sector map with its settings.
type Pass struct {
	Name   string
	Map    *sectors.Map
	Config PassConfig
}

func (c Config) validate() error {
	switch c.QualityMode {
	case QualityFit, QualityLength:
	default:
		return fmt.Errorf("unknown quality mode %q", c.QualityMode)
	}
	if c.BField < 0 {
		return fmt.Errorf("magnetic field must be non-negative, got %v", c.BField)
	}
	if c.MinFitProbability < 0 || c.MinFitProbability > 1 {
		return fmt.Errorf("min fit probability must be in [0,1], got %v", c.MinFitProbability)
	}
	return c.Overlap.Validate()
}

func (p Pass) validate() error {
	if p.Map == nil {
		return errors.New("no sector map")
	}
	if err := p.Map.Validate(); err != nil {
		return err
	}
	pc := p.Config
	if pc.HighestLayer <= 0 {
		return fmt.Errorf("highest layer must be positive, got %d", pc.HighestLayer)
	}
	if pc.SmearSigma < 0 {
		return fmt.Errorf("smear sigma must be non-negative, got %v", pc.SmearSigma)
	}
	if pc.TuneCutoffs < -50 || pc.TuneCutoffs > 1000 {
		return fmt.Errorf("tune_cutoffs must be in [-50,1000], got %v", pc.TuneCutoffs)
	}
	if pc.MinSegmentFilters > len(pc.SegmentFilters) {
		return fmt.Errorf("min segment filters %d exceeds %d active filters", pc.MinSegmentFilters, len(pc.SegmentFilters))
	}
	if pc.MinNeighborFilters > len(pc.NeighborFilters) {
		return fmt.Errorf("min neighbor filters %d exceeds %d active filters", pc.MinNeighborFilters, len(pc.NeighborFilters))
	}
	if err := checkArity(pc.SegmentFilters, 2); err != nil {
		return err
	}
	if err := checkArity(pc.NeighborFilters, 3); err != nil {
		return err
	}
	return checkArity(pc.TrackFilters, 0, 4)
}

func checkArity(ks []filters.Kind, want ...int) error {
	for _, k := range ks {
		ok := false
		for _, a := range want {
			if k.Arity() == a {
				ok = true
			}
		}
		if !ok {
			return fmt.Errorf("filter %q cannot be used here (takes %d hits)", k, k.Arity())
		}
	}
	return nil
}

// ParseTrackKinds validates track filter names: whole-track kinds and the
// four-hit window kinds.
func ParseTrackKinds(names []string) ([]filters.Kind, error) {
	var out []filters.Kind
	for _, n := range names {
		k := filters.Kind(n)
		switch k.Arity() {
		case 0, 4:
			out = append(out, k)
		case -1:
			return nil, fmt.Errorf("unknown filter %q", n)
		default:
			return nil, fmt.Errorf("filter %q is not a track filter", n)
		}
	}
	return out, nil
}
