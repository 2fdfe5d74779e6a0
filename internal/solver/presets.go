package solver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Presets are the constraints and goals applied when a trigger omits them.
type Presets struct {
	Constraints       []Constraint `yaml:"constraints"`
	OptimizationGoals []string     `yaml:"optimization_goals"`
}

// LoadPresets reads a YAML presets file. An empty path yields presets holding
// only fallbackGoals.
func LoadPresets(path string, fallbackGoals []string) (*Presets, error) {
	presets := &Presets{OptimizationGoals: append([]string(nil), fallbackGoals...)}
	if path == "" {
		return presets, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solver presets: %w", err)
	}
	return ParsePresets(raw, fallbackGoals)
}

// ParsePresets decodes presets and checks them against the solver vocabulary.
func ParsePresets(raw []byte, fallbackGoals []string) (*Presets, error) {
	var presets Presets
	if err := yaml.Unmarshal(raw, &presets); err != nil {
		return nil, fmt.Errorf("decode solver presets: %w", err)
	}
	for i, c := range presets.Constraints {
		if !KnownConstraintType(c.Type) {
			return nil, fmt.Errorf("preset constraint %d: unknown type %q", i, c.Type)
		}
		if c.Weight == 0 {
			presets.Constraints[i].Weight = 1
		}
	}
	for _, g := range presets.OptimizationGoals {
		if !KnownGoal(g) {
			return nil, fmt.Errorf("preset goal %q is not supported", g)
		}
	}
	if len(presets.OptimizationGoals) == 0 {
		presets.OptimizationGoals = append([]string(nil), fallbackGoals...)
	}
	return &presets, nil
}
