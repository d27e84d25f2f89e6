package pipeline

import (
	"fmt"

	"github.com/banshee-data/trackfinder/internal/config"
	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
	"github.com/banshee-data/trackfinder/internal/tracking/overlap"
	"github.com/banshee-data/trackfinder/internal/tracking/sectors"
)

// ConfigFromTuning resolves a tuning file into pipeline settings and loads
// the sector map of every pass.
func ConfigFromTuning(tc *config.TuningConfig) (Config, []Pass, error) {
	if err := tc.Validate(); err != nil {
		return Config{}, nil, err
	}
	o := tc.GetOrigin()
	ov := tc.GetOverlap()
	cfg := Config{
		MaxRounds:         tc.GetMaxCARounds(),
		MaxActiveSegments: tc.GetMaxActiveSegments(),
		MaxCandidates:     tc.GetMaxCandidates(),
		BField:            tc.GetMagneticFieldTesla(),
		Origin:            hits.Vec3{X: o[0], Y: o[1], Z: o[2]},
		QualityMode:       tc.GetQualityMode(),
		MinFitProbability: tc.GetMinFitProbability(),
		StoreFailedFits:   tc.GetStoreFailedFits(),
		VerifyGraph:       tc.GetVerifyGraph(),
		Seed:              tc.GetSeed(),
		Overlap: overlap.Config{
			Mode:                 overlap.Mode(ov.GetMode()),
			Clean:                ov.GetCleanOverlappingSet(),
			Omega:                ov.GetOmega(),
			TemperatureStart:     ov.GetTemperatureStart(),
			TemperatureFloor:     ov.GetTemperatureFloor(),
			ConvergenceThreshold: ov.GetConvergenceThreshold(),
			AcceptanceCutoff:     ov.GetAcceptanceCutoff(),
			MaxSweeps:            ov.GetMaxSweeps(),
			MaxReruns:            ov.GetMaxReruns(),
			Fallback:             overlap.Fallback(ov.GetFallback()),
		},
	}

	passes := make([]Pass, 0, len(tc.Passes))
	for _, pt := range tc.Passes {
		p, err := passFromTuning(pt)
		if err != nil {
			return Config{}, nil, fmt.Errorf("pass %q: %w", pt.Name, err)
		}
		passes = append(passes, p)
	}
	return cfg, passes, nil
}

func passFromTuning(pt config.PassConfig) (Pass, error) {
	seg, err := filters.ParseKinds(pt.SegmentFilters, 2)
	if err != nil {
		return Pass{}, fmt.Errorf("segment_filters: %w", err)
	}
	nb, err := filters.ParseKinds(pt.NeighborFilters, 3)
	if err != nil {
		return Pass{}, fmt.Errorf("neighbor_filters: %w", err)
	}
	tr, err := ParseTrackKinds(pt.TrackFilters)
	if err != nil {
		return Pass{}, fmt.Errorf("track_filters: %w", err)
	}
	m, err := sectors.LoadMap(pt.SectorMap)
	if err != nil {
		return Pass{}, err
	}
	return Pass{
		Name: pt.Name,
		Map:  m,
		Config: PassConfig{
			HighestLayer:       pt.GetHighestLayer(),
			MinLayer:           pt.GetMinLayer(),
			MinState:           pt.GetMinState(),
			TotalLayers:        pt.GetTotalLayers(),
			SetupWeight:        pt.GetSetupWeight(),
			MinSegmentFilters:  pt.GetMinSegmentFilters(),
			MinNeighborFilters: pt.GetMinNeighborFilters(),
			TuneCutoffs:        pt.GetTuneCutoffs(),
			QISmear:            pt.GetQISmear(),
			SmearMean:          pt.GetSmearMean(),
			SmearSigma:         pt.GetSmearSigma(),
			SegmentFilters:     seg,
			NeighborFilters:    nb,
			TrackFilters:       tr,
		},
	}, nil
}
