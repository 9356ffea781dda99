// Package automation runs scripted batches of experiments: scenarios read
// from YAML and one-parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"maps"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

// Scenario defines a scripted simulation sequence
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset, a config file or the defaults and
// applies its own overrides on top.
type ScenarioStep struct {
	Name       string               `yaml:"name"`
	Model      string               `yaml:"model"`
	Preset     string               `yaml:"preset,omitempty"`
	Config     string               `yaml:"config,omitempty"`
	Method     string               `yaml:"method,omitempty"`
	Steps      int                  `yaml:"steps,omitempty"`
	Params     map[string][]float64 `yaml:"params,omitempty"`
	InitStates map[string][]float64 `yaml:"init_states,omitempty"`
	Series     map[string][]float64 `yaml:"series,omitempty"`
}

// StepResult is one finished scenario step.
type StepResult struct {
	Name       string
	Experiment *experiment.Experiment
	Result     *dynamo.Result
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &scenario, nil
}

// Resolve builds the run configuration of one step.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Preset != "":
		if cfg = config.GetPreset(s.Model, s.Preset); cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", s.Preset, config.ListPresets(s.Model))
		}
	case s.Config != "":
		var err error
		if cfg, err = config.Load(s.Config); err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
	}
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.Method != "" {
		cfg.Solver.Method = s.Method
	}
	if s.Steps > 0 {
		cfg.Steps = s.Steps
	}
	cfg.Params = merge(cfg.Params, s.Params)
	cfg.InitStates = merge(cfg.InitStates, s.InitStates)
	cfg.Series = merge(cfg.Series, s.Series)
	return cfg, nil
}

func merge(base, extra map[string][]float64) map[string][]float64 {
	if len(extra) == 0 {
		return base
	}
	if base == nil {
		base = map[string][]float64{}
	}
	maps.Copy(base, extra)
	return base
}

// RunScenario executes all steps in a scenario in order and stops at the
// first error.
func RunScenario(ctx context.Context, scenario *Scenario, registry *models.Registry) ([]StepResult, error) {
	logger := telemetry.FromContext(ctx)
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		logger.Info("running scenario step", "scenario", scenario.Name, "step", name, "n", i+1, "of", len(scenario.Steps))

		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		exp, err := experiment.New(ctx, cfg, registry)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Name: name, Experiment: exp, Result: result})
	}

	return results, nil
}

// ParameterSweep runs one experiment across evenly spaced values of one
// parameter.
type ParameterSweep struct {
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	// Variable and Node select the series summarised per value.
	Variable string
	Node     int
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue float64
	Peak       float64
	Final      float64
	Failed     bool
}

// RunSweep executes a parameter sweep concurrently; results follow the
// parameter values in ascending order.
func RunSweep(ctx context.Context, sweep *ParameterSweep, exp *experiment.Experiment) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("sweep needs at least two steps, got %d", sweep.NumSteps)
	}
	paramStep := (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)

	base := exp.Config().ParamSet()
	values := make([]float64, sweep.NumSteps)
	sets := make([]dynamo.ParamSet, sweep.NumSteps)
	for i := range sets {
		values[i] = sweep.ParamMin + float64(i)*paramStep
		sets[i] = base.With(sweep.ParamName, values[i])
	}

	runs, err := dynamo.NewEnsemble(exp.RunWith, 0).Run(ctx, sets)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(runs))
	for i, res := range runs {
		s, ok := res.Series(sweep.Variable, sweep.Node)
		if !ok {
			return nil, fmt.Errorf("model has no variable %q", sweep.Variable)
		}
		peak := math.Inf(-1)
		for _, v := range s {
			peak = math.Max(peak, v)
		}
		results[i] = SweepResult{
			ParamValue: values[i],
			Peak:       peak,
			Final:      s[len(s)-1],
			Failed:     res.Failed(),
		}
	}
	return results, nil
}
