package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/trackfinder.defaults.json"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// TuningConfig represents the root configuration of the track finder.
// Pointer fields distinguish "unset" from zero; the Get* accessors supply
// defaults for unset fields so partial files are safe.
type TuningConfig struct {
	// Circuit breakers
	MaxCARounds       *int `json:"max_ca_rounds,omitempty"`
	MaxActiveSegments *int `json:"max_active_segments,omitempty"`
	MaxCandidates     *int `json:"max_candidates,omitempty"`

	// Detector geometry
	MagneticFieldTesla *float64  `json:"magnetic_field_tesla,omitempty"`
	Origin             []float64 `json:"origin,omitempty"` // [x, y, z] in cm

	// Candidate quality
	QualityMode       *string  `json:"quality_mode,omitempty"` // "fit" or "length"
	MinFitProbability *float64 `json:"min_fit_probability,omitempty"`
	StoreFailedFits   *bool    `json:"store_failed_fits,omitempty"`

	VerifyGraph *bool  `json:"verify_graph,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`

	Overlap *OverlapConfig `json:"overlap,omitempty"`
	Passes  []PassConfig   `json:"passes,omitempty"`
}

// OverlapConfig holds the overlap resolver settings.
type OverlapConfig struct {
	Mode                 *string  `json:"overlap_mode,omitempty"` // "greedy", "relaxation" or "none"
	CleanOverlappingSet  *bool    `json:"clean_overlapping_set,omitempty"`
	Omega                *float64 `json:"omega,omitempty"`
	TemperatureStart     *float64 `json:"temperature_start,omitempty"`
	TemperatureFloor     *float64 `json:"temperature_floor,omitempty"`
	ConvergenceThreshold *float64 `json:"convergence_threshold,omitempty"`
	AcceptanceCutoff     *float64 `json:"acceptance_cutoff,omitempty"`
	MaxSweeps            *int     `json:"max_sweeps,omitempty"`
	MaxReruns            *int     `json:"max_reruns,omitempty"`
	Fallback             *string  `json:"fallback,omitempty"` // "greedy", "drop" or "abort"
}

// PassConfig configures one sector map pass.
type PassConfig struct {
	Name      string `json:"name"`
	SectorMap string `json:"sector_map"` // path to a YAML sector map

	HighestLayer       *int     `json:"highest_layer,omitempty"`
	MinLayer           *int     `json:"min_layer,omitempty"`
	MinState           *int     `json:"min_state,omitempty"`
	TotalLayers        *int     `json:"total_layers,omitempty"`
	SetupWeight        *float64 `json:"setup_weight,omitempty"`
	MinSegmentFilters  *int     `json:"min_segment_filters,omitempty"`
	MinNeighborFilters *int     `json:"min_neighbor_filters,omitempty"`
	TuneCutoffs        *float64 `json:"tune_cutoffs,omitempty"` // percent

	// Length quality smearing
	QISmear    *bool    `json:"qi_smear,omitempty"`
	SmearMean  *float64 `json:"smear_mean,omitempty"`
	SmearSigma *float64 `json:"smear_sigma,omitempty"`

	SegmentFilters  []string `json:"segment_filters,omitempty"`
	NeighborFilters []string `json:"neighbor_filters,omitempty"`
	TrackFilters    []string `json:"track_filters,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Relative sector map paths are resolved against the config file's directory.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(cleanPath)
	for i := range cfg.Passes {
		p := &cfg.Passes[i]
		if p.SectorMap != "" && !filepath.IsAbs(p.SectorMap) {
			p.SectorMap = filepath.Join(dir, p.SectorMap)
		}
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,             // from config/
		"../../" + DefaultConfigPath,          // from internal/config/ or cmd/trackfind/
		"../../../" + DefaultConfigPath,       // from internal/tracking/pipeline/
		"../../../../" + DefaultConfigPath,    // from internal/tracking/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*int{
		"max_ca_rounds":       c.MaxCARounds,
		"max_active_segments": c.MaxActiveSegments,
		"max_candidates":      c.MaxCandidates,
	} {
		if v != nil && *v < 0 {
			return invalid("%s must be non-negative, got %d", name, *v)
		}
	}
	if c.MagneticFieldTesla != nil && *c.MagneticFieldTesla < 0 {
		return invalid("magnetic_field_tesla must be non-negative, got %f", *c.MagneticFieldTesla)
	}
	if c.Origin != nil && len(c.Origin) != 3 {
		return invalid("origin must have 3 coordinates, got %d", len(c.Origin))
	}
	switch m := c.GetQualityMode(); m {
	case "fit", "length":
	default:
		return invalid("quality_mode must be fit or length, got %q", m)
	}
	if p := c.GetMinFitProbability(); p < 0 || p > 1 {
		return invalid("min_fit_probability must be between 0 and 1, got %f", p)
	}
	if err := c.Overlap.validate(); err != nil {
		return err
	}

	names := make(map[string]bool, len(c.Passes))
	for i, p := range c.Passes {
		if p.Name == "" {
			return invalid("pass %d has no name", i)
		}
		if names[p.Name] {
			return invalid("duplicate pass name %q", p.Name)
		}
		names[p.Name] = true
		if p.SectorMap == "" {
			return invalid("pass %q has no sector_map", p.Name)
		}
		if p.GetHighestLayer() <= 0 {
			return invalid("pass %q highest_layer must be positive, got %d", p.Name, p.GetHighestLayer())
		}
		if w := p.GetSetupWeight(); w < 0 || w > 100 {
			return invalid("pass %q setup_weight must be between 0 and 100, got %f", p.Name, w)
		}
		if t := p.GetTuneCutoffs(); t < -50 || t > 1000 {
			return invalid("pass %q tune_cutoffs must be between -50 and 1000, got %f", p.Name, t)
		}
		if s := p.GetSmearSigma(); s < 0 {
			return invalid("pass %q smear_sigma must be non-negative, got %f", p.Name, s)
		}
	}
	return nil
}

func (o *OverlapConfig) validate() error {
	switch m := o.GetMode(); m {
	case "greedy", "relaxation", "none":
	default:
		return invalid("overlap_mode must be greedy, relaxation or none, got %q", m)
	}
	switch f := o.GetFallback(); f {
	case "greedy", "drop", "abort":
	default:
		return invalid("fallback must be greedy, drop or abort, got %q", f)
	}
	if w := o.GetOmega(); w < 0 || w > 1 {
		return invalid("omega must be between 0 and 1, got %f", w)
	}
	if o.GetTemperatureStart() <= 0 || o.GetTemperatureFloor() <= 0 {
		return invalid("temperatures must be positive")
	}
	if o.GetMaxSweeps() <= 0 {
		return invalid("max_sweeps must be positive, got %d", o.GetMaxSweeps())
	}
	if o.GetMaxReruns() < 0 {
		return invalid("max_reruns must be non-negative, got %d", o.GetMaxReruns())
	}
	return nil
}

// GetMaxCARounds returns the max_ca_rounds value or the default.
func (c *TuningConfig) GetMaxCARounds() int {
	if c.MaxCARounds == nil {
		return 30 // default
	}
	return *c.MaxCARounds
}

// GetMaxActiveSegments returns the max_active_segments value or the default.
func (c *TuningConfig) GetMaxActiveSegments() int {
	if c.MaxActiveSegments == nil {
		return 50000 // default
	}
	return *c.MaxActiveSegments
}

// GetMaxCandidates returns the max_candidates value or the default.
func (c *TuningConfig) GetMaxCandidates() int {
	if c.MaxCandidates == nil {
		return 20000 // default
	}
	return *c.MaxCandidates
}

// GetMagneticFieldTesla returns the magnetic_field_tesla value or the default.
func (c *TuningConfig) GetMagneticFieldTesla() float64 {
	if c.MagneticFieldTesla == nil {
		return 1.5 // default
	}
	return *c.MagneticFieldTesla
}

// GetOrigin returns the reference point or the coordinate origin.
func (c *TuningConfig) GetOrigin() [3]float64 {
	var o [3]float64
	if len(c.Origin) == 3 {
		copy(o[:], c.Origin)
	}
	return o
}

// GetQualityMode returns the quality_mode value or the default.
func (c *TuningConfig) GetQualityMode() string {
	if c.QualityMode == nil || *c.QualityMode == "" {
		return "fit" // default
	}
	return *c.QualityMode
}

// GetMinFitProbability returns the min_fit_probability value or the default.
func (c *TuningConfig) GetMinFitProbability() float64 {
	if c.MinFitProbability == nil {
		return 0
	}
	return *c.MinFitProbability
}

// GetStoreFailedFits returns the store_failed_fits value or the default.
func (c *TuningConfig) GetStoreFailedFits() bool {
	if c.StoreFailedFits == nil {
		return false
	}
	return *c.StoreFailedFits
}

// GetVerifyGraph returns the verify_graph value or the default.
func (c *TuningConfig) GetVerifyGraph() bool {
	if c.VerifyGraph == nil {
		return false
	}
	return *c.VerifyGraph
}

// GetSeed returns the seed value; 0 means derived from the event ID alone.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetOverlap returns the overlap section, empty when unset.
func (c *TuningConfig) GetOverlap() *OverlapConfig {
	if c.Overlap == nil {
		return &OverlapConfig{}
	}
	return c.Overlap
}

// GetMode returns the overlap_mode value or the default.
func (o *OverlapConfig) GetMode() string {
	if o == nil || o.Mode == nil || *o.Mode == "" {
		return "relaxation" // default
	}
	return *o.Mode
}

// GetCleanOverlappingSet returns the clean_overlapping_set value or the default.
func (o *OverlapConfig) GetCleanOverlappingSet() bool {
	if o == nil || o.CleanOverlappingSet == nil {
		return true // default
	}
	return *o.CleanOverlappingSet
}

// GetOmega returns the omega value or the default.
func (o *OverlapConfig) GetOmega() float64 {
	if o == nil || o.Omega == nil {
		return 0.5 // default
	}
	return *o.Omega
}

// GetTemperatureStart returns the temperature_start value or the default.
func (o *OverlapConfig) GetTemperatureStart() float64 {
	if o == nil || o.TemperatureStart == nil {
		return 3.1 // default
	}
	return *o.TemperatureStart
}

// GetTemperatureFloor returns the temperature_floor value or the default.
func (o *OverlapConfig) GetTemperatureFloor() float64 {
	if o == nil || o.TemperatureFloor == nil {
		return 0.1 // default
	}
	return *o.TemperatureFloor
}

// GetConvergenceThreshold returns the convergence_threshold value or the default.
func (o *OverlapConfig) GetConvergenceThreshold() float64 {
	if o == nil || o.ConvergenceThreshold == nil {
		return 0.05 // default
	}
	return *o.ConvergenceThreshold
}

// GetAcceptanceCutoff returns the acceptance_cutoff value or the default.
func (o *OverlapConfig) GetAcceptanceCutoff() float64 {
	if o == nil || o.AcceptanceCutoff == nil {
		return 0.7 // default
	}
	return *o.AcceptanceCutoff
}

// GetMaxSweeps returns the max_sweeps value or the default.
func (o *OverlapConfig) GetMaxSweeps() int {
	if o == nil || o.MaxSweeps == nil {
		return 200 // default
	}
	return *o.MaxSweeps
}

// GetMaxReruns returns the max_reruns value or the default.
func (o *OverlapConfig) GetMaxReruns() int {
	if o == nil || o.MaxReruns == nil {
		return 3 // default
	}
	return *o.MaxReruns
}

// GetFallback returns the fallback value or the default.
func (o *OverlapConfig) GetFallback() string {
	if o == nil || o.Fallback == nil || *o.Fallback == "" {
		return "greedy" // default
	}
	return *o.Fallback
}

// GetHighestLayer returns the highest_layer value or the default.
func (p PassConfig) GetHighestLayer() int {
	if p.HighestLayer == nil {
		return 6 // default: outermost strip layer
	}
	return *p.HighestLayer
}

// GetMinLayer returns the min_layer value or the default.
func (p PassConfig) GetMinLayer() int {
	if p.MinLayer == nil {
		return 4 // default
	}
	return *p.MinLayer
}

// GetMinState returns the min_state value or the default.
func (p PassConfig) GetMinState() int {
	if p.MinState == nil {
		return 2 // default
	}
	return *p.MinState
}

// GetTotalLayers returns the total_layers value or the default.
func (p PassConfig) GetTotalLayers() int {
	if p.TotalLayers == nil {
		return 6 // default
	}
	return *p.TotalLayers
}

// GetSetupWeight returns the setup_weight value or the default.
func (p PassConfig) GetSetupWeight() float64 {
	if p.SetupWeight == nil {
		return 0
	}
	return *p.SetupWeight
}

// GetMinSegmentFilters returns the min_segment_filters value, defaulting to
// every active segment filter.
func (p PassConfig) GetMinSegmentFilters() int {
	if p.MinSegmentFilters == nil {
		return len(p.SegmentFilters)
	}
	return *p.MinSegmentFilters
}

// GetMinNeighborFilters returns the min_neighbor_filters value, defaulting
// to every active neighbor filter.
func (p PassConfig) GetMinNeighborFilters() int {
	if p.MinNeighborFilters == nil {
		return len(p.NeighborFilters)
	}
	return *p.MinNeighborFilters
}

// GetTuneCutoffs returns the tune_cutoffs value or the default.
func (p PassConfig) GetTuneCutoffs() float64 {
	if p.TuneCutoffs == nil {
		return 0
	}
	return *p.TuneCutoffs
}

// GetQISmear reports whether length qualities are smeared.
func (p PassConfig) GetQISmear() bool {
	return p.QISmear != nil && *p.QISmear
}

// GetSmearMean returns the smear_mean value or the default.
func (p PassConfig) GetSmearMean() float64 {
	if p.SmearMean == nil {
		return 0
	}
	return *p.SmearMean
}

// GetSmearSigma returns the smear_sigma value or the default.
func (p PassConfig) GetSmearSigma() float64 {
	if p.SmearSigma == nil {
		return 0.1 // default
	}
	return *p.SmearSigma
}
