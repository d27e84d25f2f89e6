package sectors

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/trackfinder/internal/tracking/filters"
	"github.com/banshee-data/trackfinder/internal/tracking/hits"
)

var (
	// ErrUnknownSector is returned when a friend list names a sector that is
	// not part of the map.
	ErrUnknownSector = errors.New("unknown sector")
	// ErrNoVirtualSector is returned when the map lacks the virtual sector.
	ErrNoVirtualSector = errors.New("sector map has no virtual sector")
	// ErrUnknownFilter is returned for a cutoff keyed by an unknown filter.
	ErrUnknownFilter = errors.New("unknown filter in sector map")
)

const maxMapFileSize = 16 * 1024 * 1024

// Sector is one detector region with its ordered friend list. Cutoffs are
// keyed by friend id, then filter kind.
type Sector struct {
	ID      string
	Layer   int
	Friends []string
	Cutoffs map[string]map[filters.Kind]filters.Cutoff
}

// Map is an immutable sector map shared by every cycle of a pass.
type Map struct {
	Name    string
	Sectors map[string]*Sector
}

// Cutoff looks up the cutoff of kind for the sector/friend pair.
func (m *Map) Cutoff(sector, friend string, kind filters.Kind) (filters.Cutoff, bool) {
	s, ok := m.Sectors[sector]
	if !ok {
		return filters.Cutoff{}, false
	}
	c, ok := s.Cutoffs[friend][kind]
	return c, ok
}

// EnsureVirtual adds an empty virtual sector when the map has none.
func (m *Map) EnsureVirtual() {
	if m.Sectors == nil {
		m.Sectors = make(map[string]*Sector)
	}
	if _, ok := m.Sectors[hits.VirtualSector]; !ok {
		m.Sectors[hits.VirtualSector] = &Sector{ID: hits.VirtualSector}
	}
}

// Validate checks that every friend exists, every cutoff names a known
// filter and the virtual sector is present.
func (m *Map) Validate() error {
	if _, ok := m.Sectors[hits.VirtualSector]; !ok {
		return fmt.Errorf("map %q: %w", m.Name, ErrNoVirtualSector)
	}
	for _, id := range m.sortedIDs() {
		s := m.Sectors[id]
		for _, f := range s.Friends {
			if _, ok := m.Sectors[f]; !ok {
				return fmt.Errorf("map %q sector %s friend %s: %w", m.Name, id, f, ErrUnknownSector)
			}
		}
		for friend, cuts := range s.Cutoffs {
			for k := range cuts {
				if k.Arity() < 2 {
					return fmt.Errorf("map %q sector %s friend %s filter %q: %w", m.Name, id, friend, k, ErrUnknownFilter)
				}
			}
		}
	}
	return nil
}

// Widen returns a deep copy with every cutoff widened by percent.
func (m *Map) Widen(percent float64) *Map {
	out := &Map{Name: m.Name, Sectors: make(map[string]*Sector, len(m.Sectors))}
	for id, s := range m.Sectors {
		cp := &Sector{ID: s.ID, Layer: s.Layer, Friends: append([]string(nil), s.Friends...)}
		if s.Cutoffs != nil {
			cp.Cutoffs = make(map[string]map[filters.Kind]filters.Cutoff, len(s.Cutoffs))
			for f, cuts := range s.Cutoffs {
				m2 := make(map[filters.Kind]filters.Cutoff, len(cuts))
				for k, c := range cuts {
					m2[k] = c.Widen(percent)
				}
				cp.Cutoffs[f] = m2
			}
		}
		out.Sectors[id] = cp
	}
	return out
}

func (m *Map) sortedIDs() []string {
	ids := make([]string, 0, len(m.Sectors))
	for id := range m.Sectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type mapFile struct {
	Name    string       `yaml:"name"`
	Sectors []sectorFile `yaml:"sectors"`
}

type sectorFile struct {
	ID      string       `yaml:"id"`
	Layer   int          `yaml:"layer"`
	Friends []friendFile `yaml:"friends"`
}

type friendFile struct {
	ID      string                    `yaml:"id"`
	Cutoffs map[string]filters.Cutoff `yaml:"cutoffs"`
}

// LoadMap reads a YAML sector map, adds the virtual sector if it is missing
// and validates the result.
func LoadMap(path string) (*Map, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("sector map must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat sector map: %w", err)
	}
	if info.Size() > maxMapFileSize {
		return nil, fmt.Errorf("sector map too large: %d bytes (max %d)", info.Size(), maxMapFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sector map: %w", err)
	}
	m, err := ParseMap(data)
	if err != nil {
		return nil, fmt.Errorf("sector map %s: %w", cleanPath, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(cleanPath)
	}
	return m, nil
}

// ParseMap decodes YAML sector map bytes.
func ParseMap(data []byte) (*Map, error) {
	var f mapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	m := &Map{Name: f.Name, Sectors: make(map[string]*Sector, len(f.Sectors)+1)}
	for _, sf := range f.Sectors {
		if sf.ID == "" {
			return nil, errors.New("sector without id")
		}
		if _, dup := m.Sectors[sf.ID]; dup {
			return nil, fmt.Errorf("duplicate sector %s", sf.ID)
		}
		s := &Sector{ID: sf.ID, Layer: sf.Layer, Cutoffs: make(map[string]map[filters.Kind]filters.Cutoff)}
		for _, fr := range sf.Friends {
			s.Friends = append(s.Friends, fr.ID)
			cuts := make(map[filters.Kind]filters.Cutoff, len(fr.Cutoffs))
			for name, c := range fr.Cutoffs {
				cuts[filters.Kind(name)] = c
			}
			s.Cutoffs[fr.ID] = cuts
		}
		m.Sectors[sf.ID] = s
	}
	m.EnsureVirtual()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
