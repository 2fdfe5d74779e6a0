package solver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const presetsYAML = `
optimization_goals:
  - minimize_teacher_gaps
  - balance_workload
constraints:
  - type: break_requirements
    description: at least one break before the fifth period
    is_hard: true
    parameters:
      after_period: 4
  - type: max_lessons_per_day
    weight: 0.5
    parameters:
      max: 8
`

func TestParsePresets(t *testing.T) {
	presets, err := ParsePresets([]byte(presetsYAML), []string{GoalMinimizeConflicts})
	require.NoError(t, err)
	assert.Equal(t, []string{GoalMinimizeTeacherGaps, GoalBalanceWorkload}, presets.OptimizationGoals)
	require.Len(t, presets.Constraints, 2)
	assert.True(t, presets.Constraints[0].IsHard)
	assert.Equal(t, 1.0, presets.Constraints[0].Weight)
	assert.Equal(t, 0.5, presets.Constraints[1].Weight)
	assert.Equal(t, 4, presets.Constraints[0].Parameters["after_period"])
}

func TestParsePresetsRejectsUnknownVocabulary(t *testing.T) {
	_, err := ParsePresets([]byte("constraints:\n  - type: teleportation\n"), nil)
	assert.Error(t, err)

	_, err = ParsePresets([]byte("optimization_goals: [win]\n"), nil)
	assert.Error(t, err)
}

func TestLoadPresetsFallsBackToGoals(t *testing.T) {
	presets, err := LoadPresets("", []string{GoalMinimizeConflicts, GoalBalanceWorkload})
	require.NoError(t, err)
	assert.Empty(t, presets.Constraints)
	assert.Equal(t, []string{GoalMinimizeConflicts, GoalBalanceWorkload}, presets.OptimizationGoals)

	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("constraints:\n  - type: consecutive_lessons\n"), 0o600))
	presets, err = LoadPresets(path, []string{GoalMinimizeConflicts})
	require.NoError(t, err)
	assert.Equal(t, []string{GoalMinimizeConflicts}, presets.OptimizationGoals)
	require.Len(t, presets.Constraints, 1)
}
