// Package models is the catalogue of built-in hydrological models.
package models

import (
	"fmt"
	"maps"
	"slices"

	"github.com/san-kum/hydrosim/internal/bucket"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/route"
)

// Options carry what a model needs beyond its declarations.
type Options struct {
	Topology *route.Topology
	Weighted bool
	Bucket   []bucket.Option
}

// Entry describes one registered model.
type Entry struct {
	Name        string
	Description string
	Build       func(Options) (*model.Model, error)
	// Params and InitStates are sensible starting values.
	Params     map[string]float64
	InitStates map[string]float64
	// Routed models need Options.Topology.
	Routed bool
}

type Registry struct {
	entries map[string]Entry
}

// NewRegistry returns a registry holding the built-in models.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]Entry)}

	r.entries["exphydro"] = Entry{
		Name:        "exphydro",
		Description: "snow and soil water buckets (Patil & Stieglitz)",
		Build:       NewExpHydro,
		Params:      ExpHydroParams,
		InitStates:  map[string]float64{"snowpack": 0, "soilwater": 500},
	}
	r.entries["exphydro_routed"] = Entry{
		Name:        "exphydro_routed",
		Description: "exphydro on every node with linear channel routing",
		Build:       NewRoutedExpHydro,
		Params:      withParams(ExpHydroParams, map[string]float64{"kr": 0.5}),
		InitStates:  map[string]float64{"snowpack": 0, "soilwater": 500, "channel": 0},
		Routed:      true,
	}
	r.entries["linear_reservoir"] = Entry{
		Name:        "linear_reservoir",
		Description: "single storage draining at k*S",
		Build:       NewLinearReservoir,
		Params:      map[string]float64{"k": 0.1},
		InitStates:  map[string]float64{"S": 0},
	}
	r.entries["linear_route"] = Entry{
		Name:        "linear_route",
		Description: "linear channel routing of external runoff",
		Build:       NewLinearRoute,
		Params:      map[string]float64{"kr": 0.5},
		InitStates:  map[string]float64{"channel": 0},
		Routed:      true,
	}
	return r
}

// Register adds e. Names are unique.
func (r *Registry) Register(e Entry) error {
	if e.Build == nil {
		return fmt.Errorf("model %s: nil builder", e.Name)
	}
	if _, ok := r.entries[e.Name]; ok {
		return fmt.Errorf("model %s already registered", e.Name)
	}
	r.entries[e.Name] = e
	return nil
}

func (r *Registry) Get(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("unknown model: %s", name)
	}
	return e, nil
}

// Build constructs the named model.
func (r *Registry) Build(name string, o Options) (*model.Model, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if e.Routed && o.Topology == nil {
		return nil, fmt.Errorf("model %s needs a network topology", name)
	}
	return e.Build(o)
}

// List returns registered model names, sorted.
func (r *Registry) List() []string {
	return slices.Sorted(maps.Keys(r.entries))
}

func withParams(base, extra map[string]float64) map[string]float64 {
	out := maps.Clone(base)
	maps.Copy(out, extra)
	return out
}
