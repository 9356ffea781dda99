package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "exphydro" {
		t.Errorf("expected model exphydro, got %s", cfg.Model)
	}
	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("linear_reservoir", "recession")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Params["k"][0] != 0.2 {
		t.Errorf("expected k 0.2, got %v", cfg.Params["k"])
	}

	cfg.Params["k"][0] = 9
	if again := GetPreset("linear_reservoir", "recession"); again.Params["k"][0] != 0.2 {
		t.Error("mutating a preset copy changed the preset")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("exphydro", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "storm")
	if cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("exphydro")
	want := []string{"drought", "snowmelt", "storm"}
	if len(presets) != len(want) {
		t.Fatalf("expected %v, got %v", want, presets)
	}
	for i := range want {
		if presets[i] != want[i] {
			t.Errorf("expected %v, got %v", want, presets)
		}
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestPresetsAreRunnable(t *testing.T) {
	registry := models.NewRegistry()
	for model, byName := range Presets {
		if _, err := registry.Get(model); err != nil {
			t.Errorf("presets for unregistered model %s", model)
		}
		for name, cfg := range byName {
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
			if _, err := cfg.Network(); err != nil {
				t.Errorf("%s/%s: %v", model, name, err)
			}
			for series, v := range cfg.Series {
				if len(v) != cfg.Steps {
					t.Errorf("%s/%s: series %s has %d values for %d steps", model, name, series, len(v), cfg.Steps)
				}
			}
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"method", func(c *Config) { c.Solver.Method = "leapfrog" }, "Method"},
		{"dt", func(c *Config) { c.Dt = 0 }, "Dt"},
		{"nodes", func(c *Config) { c.Nodes = 0 }, "Nodes"},
		{"interpolation", func(c *Config) { c.Interpolation = "cubic" }, "Interpolation"},
		{"downstream length", func(c *Config) { c.Topology.Downstream = []int{-1}; c.Nodes = 2 }, "Downstream"},
		{"class index length", func(c *Config) { c.ClassIndex = []int{0, 1} }, "ClassIndex"},
		{"negative class", func(c *Config) { c.ClassIndex = []int{-1} }, "ClassIndex[0]"},
		{"empty param", func(c *Config) { c.Params = map[string][]float64{"k": {}} }, "Params[k]"},
		{"spread", func(c *Config) { c.Ensemble.Spread = 1.5 }, "Spread"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			found := false
			for _, fe := range verrs {
				if fe.Field() == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("linear_route", "confluence")
	cfg.Interpolation = "constant"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Nodes != 4 || len(loaded.Topology.Downstream) != 4 {
		t.Errorf("expected the 4-node network back, got %+v", loaded.Topology)
	}
	if loaded.Params["kr"][3] != 0.8 {
		t.Errorf("expected kr[3] 0.8, got %v", loaded.Params["kr"])
	}

	rc, err := loaded.RunConfig(5)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Interp != dynamo.Constant {
		t.Errorf("expected constant interpolation, got %s", rc.Interp)
	}
	if len(rc.Times) != 5 || rc.Times[4] != 4 {
		t.Errorf("unexpected time points %v", rc.Times)
	}
	if rc.Stepper.Name() != string(integrators.MethodRK45) {
		t.Errorf("expected rk45, got %s", rc.Stepper.Name())
	}
}

func TestEdgeWeights(t *testing.T) {
	src := `
nodes: 3
topology:
  aggregate: weighted
  edges:
    - {from: 0, to: 2}
    - {from: 1, to: 2, weight: 0}
`
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(src), cfg); err != nil {
		t.Fatal(err)
	}
	topo, err := cfg.Network()
	if err != nil {
		t.Fatal(err)
	}
	edges := topo.Edges()
	if len(edges) != 2 || edges[0].Weight != 1 || edges[1].Weight != 0 {
		t.Errorf("expected weights [1 0], got %+v", edges)
	}

	clone := cfg.Clone()
	*clone.Topology.Edges[1].Weight = 0.5
	if *cfg.Topology.Edges[1].Weight != 0 {
		t.Error("clone shares edge weights with the original")
	}

	neg := -1.0
	cfg.Topology.Edges[1].Weight = &neg
	if err := cfg.Validate(); err == nil {
		t.Error("expected negative edge weight to fail validation")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	cfg := DefaultConfig()
	cfg.Solver.Method = "verlet"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an invalid solver to be rejected")
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Params = map[string][]float64{"k": {0.7}}
	cfg.WithDefaults(map[string]float64{"k": 0.1, "f": 0.02}, map[string]float64{"S": 3})

	if cfg.Params["k"][0] != 0.7 {
		t.Error("configured parameter was overwritten")
	}
	if cfg.Params["f"][0] != 0.02 {
		t.Error("missing parameter was not filled")
	}
	if cfg.InitStates["S"][0] != 3 {
		t.Error("missing init state was not filled")
	}
}
