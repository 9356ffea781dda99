package config

import "slices"

var (
	storm     = []float64{0, 2, 12, 25, 8, 3, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	drySpell  = make([]float64, 20)
	mildTemp  = []float64{8, 9, 10, 11, 12, 12, 11, 10, 9, 8, 8, 9, 10, 11, 12, 12, 11, 10, 9, 8}
	coldTemp  = []float64{-6, -5, -4, -4, -3, -2, -1, 0, 1, 3, 4, 6, 7, 8, 9, 10, 10, 11, 12, 12}
	steadyPET = []float64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	snowfall  = []float64{6, 8, 10, 6, 4, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
)

// Presets are ready-to-run configurations per built-in model.
var Presets = map[string]map[string]*Config{
	"exphydro": {
		"storm": {
			Model: "exphydro", Solver: SolverConfig{Method: "rk45"}, Dt: 1, Steps: 20, Nodes: 1,
			InitStates: map[string][]float64{"soilwater": {800}},
			Series:     map[string][]float64{"prcp": storm, "temp": mildTemp, "pet": steadyPET},
		},
		"snowmelt": {
			Model: "exphydro", Solver: SolverConfig{Method: "rk4"}, Dt: 1, Steps: 20, Nodes: 1,
			InitStates: map[string][]float64{"snowpack": {40}, "soilwater": {600}},
			Series:     map[string][]float64{"prcp": snowfall, "temp": coldTemp, "pet": steadyPET},
		},
		"drought": {
			Model: "exphydro", Solver: SolverConfig{Method: "euler"}, Dt: 1, Steps: 20, Nodes: 1,
			InitStates: map[string][]float64{"soilwater": {1200}},
			Series:     map[string][]float64{"prcp": drySpell, "temp": mildTemp, "pet": steadyPET},
		},
	},
	"linear_reservoir": {
		"recession": {
			Model: "linear_reservoir", Solver: SolverConfig{Method: "rk45"}, Dt: 1, Steps: 20, Nodes: 1,
			Params:     map[string][]float64{"k": {0.2}},
			InitStates: map[string][]float64{"S": {100}},
			Series:     map[string][]float64{"precip": drySpell},
		},
		"storm": {
			Model: "linear_reservoir", Solver: SolverConfig{Method: "rk4"}, Dt: 1, Steps: 20, Nodes: 1,
			Params: map[string][]float64{"k": {0.3}},
			Series: map[string][]float64{"precip": storm},
		},
	},
	"linear_route": {
		"chain": {
			Model: "linear_route", Solver: SolverConfig{Method: "rk45"}, Dt: 1, Steps: 20, Nodes: 3,
			Params:   map[string][]float64{"kr": {0.5}},
			Topology: TopologyConfig{Downstream: []int{1, 2, -1}},
			Series:   map[string][]float64{"runoff": storm},
		},
		"confluence": {
			Model: "linear_route", Solver: SolverConfig{Method: "rk45"}, Dt: 1, Steps: 20, Nodes: 4,
			Params:   map[string][]float64{"kr": {0.4, 0.4, 0.6, 0.8}},
			Topology: TopologyConfig{Downstream: []int{2, 2, 3, -1}},
			Series:   map[string][]float64{"runoff": storm},
		},
	},
	"exphydro_routed": {
		"basin": {
			Model: "exphydro_routed", Solver: SolverConfig{Method: "rk45"}, Dt: 1, Steps: 20, Nodes: 3,
			ClassIndex: []int{0, 1, 1},
			Params:     map[string][]float64{"smax": {1200, 1600}},
			Topology:   TopologyConfig{Downstream: []int{2, 2, -1}},
			InitStates: map[string][]float64{"soilwater": {900}},
			Series:     map[string][]float64{"prcp": storm, "temp": mildTemp, "pet": steadyPET},
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
