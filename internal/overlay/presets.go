package overlay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"trading-overlays/internal/indicator"

	"gopkg.in/yaml.v3"
)

// Preset is a named bundle of indicator specs, e.g. "momentum".
type Preset struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Indicators  []string `yaml:"indicators" json:"indicators"`
}

// Specs parses the preset's indicator strings.
func (p Preset) Specs() ([]indicator.Spec, error) {
	specs := make([]indicator.Spec, 0, len(p.Indicators))
	for _, s := range p.Indicators {
		spec, err := indicator.ParseSpec(s)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// WarmTarget is a series whose preset overlays the Warmer keeps cached.
type WarmTarget struct {
	Symbol  string   `yaml:"symbol"`
	TF      int      `yaml:"tf"`
	Presets []string `yaml:"presets"`
	Window  int      `yaml:"window,omitempty"`
}

// PresetFile is the YAML document at PRESETS_FILE.
type PresetFile struct {
	Presets []Preset     `yaml:"presets"`
	Warm    []WarmTarget `yaml:"warm"`
}

// DefaultPresets is used when no presets file exists.
func DefaultPresets() *PresetFile {
	return &PresetFile{
		Presets: []Preset{
			{Name: "trend", Description: "Moving averages", Indicators: []string{"SMA:20", "SMA:50", "EMA:20"}},
			{Name: "momentum", Description: "Oscillators", Indicators: []string{"RSI:14", "MACD:12:26:9", "STOCH:14:3:3"}},
			{Name: "volatility", Description: "Bands and range", Indicators: []string{"BB:20:2", "ATR:14"}},
		},
	}
}

// LoadPresets reads and validates a presets file. A missing file yields
// DefaultPresets.
func LoadPresets(path string) (*PresetFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPresets(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}

	var pf PresetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("presets %s: %w", path, err)
	}
	return &pf, nil
}

// Validate checks that preset names are unique, every spec parses and every
// warm target refers to a known preset.
func (pf *PresetFile) Validate() error {
	seen := make(map[string]bool, len(pf.Presets))
	for _, p := range pf.Presets {
		if p.Name == "" {
			return errors.New("preset without name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
		if _, err := p.Specs(); err != nil {
			return err
		}
	}
	for _, w := range pf.Warm {
		if w.Symbol == "" || w.TF <= 0 {
			return fmt.Errorf("warm target %q/%d: symbol and tf are required", w.Symbol, w.TF)
		}
		for _, name := range w.Presets {
			if !seen[name] {
				return fmt.Errorf("warm target %s: %w %q", w.Symbol, ErrUnknownPreset, name)
			}
		}
	}
	return nil
}

// Lookup finds a preset by name.
func (pf *PresetFile) Lookup(name string) (Preset, bool) {
	for _, p := range pf.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
