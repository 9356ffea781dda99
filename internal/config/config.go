// Package config loads and validates YAML run configurations.
package config

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/route"
)

const (
	DefaultModel  = "exphydro"
	DefaultMethod = "rk45"
	DefaultDt     = 1.0
	DefaultSteps  = 30
	DefaultNodes  = 1
	DefaultRelTol = 1e-6
	DefaultAbsTol = 1e-8
)

type Config struct {
	// Model names a built-in model, or a model declared in ModelFile.
	Model     string `yaml:"model" validate:"required"`
	ModelFile string `yaml:"model_file,omitempty"`

	Solver        SolverConfig `yaml:"solver"`
	Interpolation string       `yaml:"interpolation,omitempty" validate:"omitempty,oneof=linear constant"`

	Dt    float64 `yaml:"dt" validate:"gt=0"`
	Steps int     `yaml:"steps" validate:"gte=0"`
	Nodes int     `yaml:"nodes" validate:"gte=1"`

	// ClassIndex maps each node to a parameter class.
	ClassIndex []int                `yaml:"class_index,omitempty" validate:"omitempty,dive,gte=0"`
	Params     map[string][]float64 `yaml:"params,omitempty" validate:"omitempty,dive,min=1"`
	Blobs      map[string][]float64 `yaml:"blobs,omitempty"`
	InitStates map[string][]float64 `yaml:"init_states,omitempty" validate:"omitempty,dive,min=1"`

	Topology TopologyConfig `yaml:"topology,omitempty"`

	// Forcing is a CSV file of input series; Series are inline series
	// shared by every node. Series override columns of Forcing.
	Forcing string               `yaml:"forcing,omitempty"`
	Series  map[string][]float64 `yaml:"series,omitempty"`

	Outputs  []string       `yaml:"outputs,omitempty"`
	Ensemble EnsembleConfig `yaml:"ensemble,omitempty"`
	Seed     int64          `yaml:"seed"`
}

type SolverConfig struct {
	Method   string  `yaml:"method" validate:"oneof=euler scaled_euler discrete rk4 rk45"`
	RelTol   float64 `yaml:"rtol,omitempty" validate:"gte=0"`
	AbsTol   float64 `yaml:"atol,omitempty" validate:"gte=0"`
	MinDt    float64 `yaml:"min_dt,omitempty" validate:"gte=0"`
	MaxDt    float64 `yaml:"max_dt,omitempty" validate:"gte=0"`
	MaxSteps int     `yaml:"max_steps,omitempty" validate:"gte=0"`
}

type TopologyConfig struct {
	// Downstream[i] is the node i drains into; -1 marks an outlet.
	Downstream []int        `yaml:"downstream,omitempty" validate:"omitempty,dive,gte=-1"`
	Edges      []EdgeConfig `yaml:"edges,omitempty" validate:"omitempty,dive"`
	Aggregate  string       `yaml:"aggregate,omitempty" validate:"omitempty,oneof=sum weighted"`
}

// EdgeConfig is one network link. An unset Weight routes the whole outflow;
// an explicit 0 drops it.
type EdgeConfig struct {
	From   int      `yaml:"from" validate:"gte=0"`
	To     int      `yaml:"to" validate:"gte=0"`
	Weight *float64 `yaml:"weight,omitempty" validate:"omitempty,gte=0"`
}

// Edge resolves the default weight.
func (e EdgeConfig) Edge() route.Edge {
	w := 1.0
	if e.Weight != nil {
		w = *e.Weight
	}
	return route.Edge{From: e.From, To: e.To, Weight: w}
}

// EnsembleConfig perturbs every scalar parameter by a uniform factor in
// [1-Spread, 1+Spread] for each of Members runs.
type EnsembleConfig struct {
	Members int     `yaml:"members,omitempty" validate:"gte=0"`
	Spread  float64 `yaml:"spread,omitempty" validate:"gte=0,lt=1"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(validateNetwork, Config{})
}

// validateNetwork checks the fields whose lengths depend on Nodes.
func validateNetwork(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if n := len(c.Topology.Downstream); n > 0 && n != c.Nodes {
		sl.ReportError(c.Topology.Downstream, "Downstream", "downstream", "eqnodes", "")
	}
	if len(c.Topology.Downstream) > 0 && len(c.Topology.Edges) > 0 {
		sl.ReportError(c.Topology.Edges, "Edges", "edges", "excluded_with_downstream", "")
	}
	if n := len(c.ClassIndex); n > 0 && n != c.Nodes {
		sl.ReportError(c.ClassIndex, "ClassIndex", "class_index", "eqnodes", "")
	}
}

func DefaultConfig() *Config {
	return &Config{
		Model: DefaultModel,
		Solver: SolverConfig{
			Method: DefaultMethod,
			RelTol: DefaultRelTol,
			AbsTol: DefaultAbsTol,
		},
		Interpolation: "linear",
		Dt:            DefaultDt,
		Steps:         DefaultSteps,
		Nodes:         DefaultNodes,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a copy of c that shares no maps or slices with it.
func (c *Config) Clone() *Config {
	out := *c
	out.ClassIndex = slices.Clone(c.ClassIndex)
	out.Params = cloneSeries(c.Params)
	out.Blobs = cloneSeries(c.Blobs)
	out.InitStates = cloneSeries(c.InitStates)
	out.Series = cloneSeries(c.Series)
	out.Outputs = slices.Clone(c.Outputs)
	out.Topology.Downstream = slices.Clone(c.Topology.Downstream)
	out.Topology.Edges = slices.Clone(c.Topology.Edges)
	for i, e := range out.Topology.Edges {
		if e.Weight != nil {
			w := *e.Weight
			out.Topology.Edges[i].Weight = &w
		}
	}
	return &out
}

func cloneSeries(m map[string][]float64) map[string][]float64 {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = slices.Clone(v)
	}
	return out
}

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Times returns the declared time points 0, dt, 2dt, ... for steps points.
func (c *Config) Times(steps int) []float64 {
	ts := make([]float64, steps)
	for i := range ts {
		ts[i] = float64(i) * c.Dt
	}
	return ts
}

func (c *Config) Stepper() (dynamo.Stepper, error) {
	return integrators.New(integrators.Method(c.Solver.Method), integrators.Config{
		MinStep:  c.Solver.MinDt,
		MaxStep:  c.Solver.MaxDt,
		AbsTol:   c.Solver.AbsTol,
		RelTol:   c.Solver.RelTol,
		MaxSteps: c.Solver.MaxSteps,
	})
}

// RunConfig assembles the per-run settings for steps time points.
func (c *Config) RunConfig(steps int) (dynamo.RunConfig, error) {
	stepper, err := c.Stepper()
	if err != nil {
		return dynamo.RunConfig{}, err
	}
	interp := dynamo.Linear
	if c.Interpolation == "constant" {
		interp = dynamo.Constant
	}
	return dynamo.RunConfig{
		Times:      c.Times(steps),
		Stepper:    stepper,
		InitStates: c.InitStates,
		Interp:     interp,
		ClassIndex: slices.Clone(c.ClassIndex),
	}, nil
}

func (c *Config) ParamSet() dynamo.ParamSet {
	ps := dynamo.ParamSet{Values: map[string][]float64{}, Blobs: map[string][]float64{}}
	for k, v := range c.Params {
		ps.Values[k] = slices.Clone(v)
	}
	for k, v := range c.Blobs {
		ps.Blobs[k] = slices.Clone(v)
	}
	return ps
}

// Network builds the routing topology, or nil when none is configured.
func (c *Config) Network() (*route.Topology, error) {
	switch {
	case len(c.Topology.Downstream) > 0:
		return route.FromDownstream(c.Topology.Downstream)
	case len(c.Topology.Edges) > 0:
		edges := make([]route.Edge, len(c.Topology.Edges))
		for i, e := range c.Topology.Edges {
			edges[i] = e.Edge()
		}
		return route.NewTopology(c.Nodes, edges)
	}
	return nil, nil
}

// WithDefaults fills params and init states missing from c. Values already
// configured win.
func (c *Config) WithDefaults(params, init map[string]float64) {
	if c.Params == nil {
		c.Params = map[string][]float64{}
	}
	for k, v := range params {
		if _, ok := c.Params[k]; !ok {
			c.Params[k] = []float64{v}
		}
	}
	if c.InitStates == nil {
		c.InitStates = map[string][]float64{}
	}
	for k, v := range init {
		if _, ok := c.InitStates[k]; !ok {
			c.InitStates[k] = []float64{v}
		}
	}
}
