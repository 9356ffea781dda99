package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/models"
)

const scenarioYAML = `
name: wet and dry
description: storm then drought on the same basin
steps:
  - name: storm
    model: exphydro
    preset: storm
    params:
      smax: [900]
  - model: linear_reservoir
    method: discrete
    steps: 3
    init_states:
      S: [10]
    series:
      precip: [0, 0, 0]
`

func writeScenario(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunScenario(t *testing.T) {
	sc, err := LoadScenario(writeScenario(t, scenarioYAML))
	require.NoError(t, err)
	assert.Equal(t, "wet and dry", sc.Name)
	require.Len(t, sc.Steps, 2)

	results, err := RunScenario(context.Background(), sc, models.NewRegistry())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "storm", results[0].Name)
	assert.Equal(t, []float64{900}, results[0].Experiment.Config().Params["smax"])
	assert.Equal(t, 20, results[0].Result.Data.Steps())

	assert.Equal(t, "step-2", results[1].Name)
	s, ok := results[1].Result.Series("S", 0)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{10, 9, 8.1}, s, 1e-12)

	// presets stay untouched
	assert.Nil(t, config.GetPreset("exphydro", "storm").Params["smax"])
}

func TestRunScenarioStopsAtError(t *testing.T) {
	sc := &Scenario{Steps: []ScenarioStep{
		{Model: "linear_reservoir", Steps: 2, Series: map[string][]float64{"precip": {1, 1}}},
		{Model: "exphydro", Preset: "monsoon"},
	}}
	results, err := RunScenario(context.Background(), sc, models.NewRegistry())
	assert.ErrorContains(t, err, "step 2")
	assert.Len(t, results, 1)
}

func TestLoadScenarioRejectsEmpty(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "name: empty\n"))
	assert.Error(t, err)
}

func TestRunSweep(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "linear_reservoir"
	cfg.Solver.Method = "discrete"
	cfg.Steps = 3
	cfg.InitStates = map[string][]float64{"S": {10}}
	cfg.Series = map[string][]float64{"precip": {0, 0, 0}}
	exp, err := experiment.New(context.Background(), cfg, models.NewRegistry())
	require.NoError(t, err)

	results, err := RunSweep(context.Background(), &ParameterSweep{
		ParamName: "k", ParamMin: 0, ParamMax: 0.5, NumSteps: 3, Variable: "S",
	}, exp)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.InDelta(t, 0.25, results[1].ParamValue, 1e-12)
	assert.InDelta(t, 10, results[0].Final, 1e-12)
	assert.InDelta(t, 2.5, results[2].Final, 1e-12)
	for _, r := range results {
		assert.InDelta(t, 10, r.Peak, 1e-12)
		assert.False(t, r.Failed)
	}

	_, err = RunSweep(context.Background(), &ParameterSweep{ParamName: "k", NumSteps: 1, Variable: "S"}, exp)
	assert.Error(t, err)
}
