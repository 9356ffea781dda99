// Package loader reads declarative model files written in HCL native syntax.
//
// A file declares buckets, routes and models:
//
//	bucket "soil" {
//	  flux "evap" { value = clamp(pet, 0, S) }
//	  flux "q"    { value = param.k * S }
//	  state "S"   { rate = precip - evap - q }
//	}
//
//	model "basin" {
//	  units = ["soil"]
//	}
//
// Names without a param. prefix are variables; their roles are inferred
// from usage.
package loader

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/san-kum/hydrosim/internal/bucket"
	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/resolve"
	"github.com/san-kum/hydrosim/internal/route"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

type fileSchema struct {
	Buckets []bucketBlock `hcl:"bucket,block"`
	Routes  []routeBlock  `hcl:"route,block"`
	Models  []modelBlock  `hcl:"model,block"`
}

type bucketBlock struct {
	Name      string          `hcl:"name,label"`
	Fluxes    []fluxBlock     `hcl:"flux,block"`
	States    []stateBlock    `hcl:"state,block"`
	Submodels []submodelBlock `hcl:"submodel,block"`
}

type fluxBlock struct {
	Name    string         `hcl:"name,label"`
	Value   hcl.Expression `hcl:"value,optional"`
	Outputs []string       `hcl:"outputs,optional"`
	Values  hcl.Expression `hcl:"values,optional"`
}

type stateBlock struct {
	Name string         `hcl:"name,label"`
	Rate hcl.Expression `hcl:"rate"`
}

type submodelBlock struct {
	Name    string   `hcl:"name,label"`
	Inputs  []string `hcl:"inputs"`
	Outputs []string `hcl:"outputs"`
	Weights string   `hcl:"weights"`
	Hidden  int      `hcl:"hidden"`
}

type routeBlock struct {
	Name       string          `hcl:"name,label"`
	Outflow    string          `hcl:"outflow"`
	Inflow     string          `hcl:"inflow"`
	Aggregate  string          `hcl:"aggregate,optional"`
	Downstream []int           `hcl:"downstream,optional"`
	Edges      []edgeBlock     `hcl:"edge,block"`
	Fluxes     []fluxBlock     `hcl:"flux,block"`
	States     []stateBlock    `hcl:"state,block"`
	Submodels  []submodelBlock `hcl:"submodel,block"`
}

// edgeBlock leaves Weight nil when the attribute is absent.
type edgeBlock struct {
	From   int      `hcl:"from"`
	To     int      `hcl:"to"`
	Weight *float64 `hcl:"weight,optional"`
}

type modelBlock struct {
	Name    string   `hcl:"name,label"`
	Units   []string `hcl:"units"`
	Inputs  []string `hcl:"inputs,optional"`
	Outputs []string `hcl:"outputs,optional"`
	Sort    bool     `hcl:"sort,optional"`
}

// Options adjust how declarations become units.
type Options struct {
	// Topology is used by routes that declare neither downstream nor edge.
	Topology *route.Topology
	// Bucket options are passed to every bucket and route.
	Bucket []bucket.Option
}

// Library holds the units and models declared by one file.
type Library struct {
	units  map[string]dynamo.Unit
	order  []string
	models map[string]modelBlock
	names  []string
}

// LoadFile parses and builds the declarations in path.
func LoadFile(ctx context.Context, path string, opts Options) (*Library, error) {
	logger := telemetry.FromContext(ctx)
	logger.Debug("Parsing model file.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	lib, err := Load(ctx, src, path, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("Model file loaded.", "path", path, "units", len(lib.order), "models", len(lib.names))
	return lib, nil
}

// Load parses src as a model file named filename.
func Load(ctx context.Context, src []byte, filename string, opts Options) (*Library, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse model file %s: %s", filename, diags.Error())
	}
	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode model file %s: %s", filename, diags.Error())
	}

	lib := &Library{units: map[string]dynamo.Unit{}, models: map[string]modelBlock{}}
	add := func(name string, u dynamo.Unit) error {
		if _, dup := lib.units[name]; dup {
			return dynamo.NewConfigError("", name, "unit declared twice:", dynamo.ErrDuplicate)
		}
		lib.units[name] = u
		lib.order = append(lib.order, name)
		return nil
	}

	for _, b := range schema.Buckets {
		fluxes, states, err := declarations(b.Name, b.Fluxes, b.States, b.Submodels)
		if err != nil {
			return nil, err
		}
		u, err := bucket.New(b.Name, fluxes, states, opts.Bucket...)
		if err != nil {
			return nil, err
		}
		if err := add(b.Name, u); err != nil {
			return nil, err
		}
	}
	for _, r := range schema.Routes {
		u, err := buildRoute(r, opts)
		if err != nil {
			return nil, err
		}
		if err := add(r.Name, u); err != nil {
			return nil, err
		}
	}
	for _, m := range schema.Models {
		if _, dup := lib.models[m.Name]; dup {
			return nil, dynamo.NewConfigError("", m.Name, "model declared twice:", dynamo.ErrDuplicate)
		}
		for _, u := range m.Units {
			if _, ok := lib.units[u]; !ok {
				return nil, dynamo.NewConfigError(m.Name, u, "model references undeclared unit", dynamo.ErrMissingInput)
			}
		}
		lib.models[m.Name] = m
		lib.names = append(lib.names, m.Name)
	}
	telemetry.FromContext(ctx).Debug("Declarations built.", "file", filename, "units", lib.order)
	return lib, nil
}

func buildRoute(r routeBlock, opts Options) (*route.Route, error) {
	fluxes, states, err := declarations(r.Name, r.Fluxes, r.States, r.Submodels)
	if err != nil {
		return nil, err
	}

	topo := opts.Topology
	switch {
	case len(r.Downstream) > 0 && len(r.Edges) > 0:
		return nil, dynamo.NewConfigError(r.Name, "", "route declares both downstream and edges", dynamo.ErrTopology)
	case len(r.Downstream) > 0:
		if topo, err = route.FromDownstream(r.Downstream); err != nil {
			return nil, err
		}
	case len(r.Edges) > 0:
		edges := make([]route.Edge, len(r.Edges))
		nodes := 0
		for i, e := range r.Edges {
			edges[i] = route.Edge{From: e.From, To: e.To, Weight: 1}
			if e.Weight != nil {
				edges[i].Weight = *e.Weight
			}
			nodes = max(nodes, e.From+1, e.To+1)
		}
		if opts.Topology != nil {
			nodes = max(nodes, opts.Topology.Nodes())
		}
		if topo, err = route.NewTopology(nodes, edges); err != nil {
			return nil, err
		}
	}
	if topo == nil {
		return nil, dynamo.NewConfigError(r.Name, "", "route has no topology", dynamo.ErrTopology)
	}

	ropts := []route.Option{route.WithBucketOptions(opts.Bucket...)}
	switch r.Aggregate {
	case "", "sum":
	case "weighted":
		ropts = append(ropts, route.WithAggregator(route.Weighted(topo)))
	default:
		return nil, dynamo.NewConfigError(r.Name, r.Aggregate, "unknown aggregation", dynamo.ErrTopology)
	}
	return route.New(r.Name, fluxes, states, topo, r.Outflow, r.Inflow, ropts...)
}

func declarations(unit string, fbs []fluxBlock, sbs []stateBlock, mbs []submodelBlock) ([]decl.Flux, []decl.StateFlux, error) {
	var fluxes []decl.Flux
	for _, fb := range fbs {
		f, err := flux(unit, fb)
		if err != nil {
			return nil, nil, err
		}
		fluxes = append(fluxes, f)
	}
	for _, mb := range mbs {
		if mb.Hidden <= 0 {
			return nil, nil, dynamo.NewConfigError(unit, mb.Name, "submodel needs a positive hidden size:", dynamo.ErrArity)
		}
		net := decl.NewDense(len(mb.Inputs), mb.Hidden, len(mb.Outputs))
		f, err := decl.NewSubmodelFlux(mb.Name, mb.Inputs, mb.Outputs, mb.Weights, net)
		if err != nil {
			return nil, nil, err
		}
		fluxes = append(fluxes, f)
	}

	var states []decl.StateFlux
	for _, sb := range sbs {
		e, err := Translate(sb.Rate)
		if err != nil {
			return nil, nil, dynamo.NewConfigError(unit, sb.Name, err.Error()+" in rate of state", dynamo.ErrArity)
		}
		s, err := decl.NewExprState(sb.Name, e)
		if err != nil {
			return nil, nil, err
		}
		states = append(states, s)
	}
	return fluxes, states, nil
}

func flux(unit string, fb fluxBlock) (decl.Flux, error) {
	single, multi := present(fb.Value), present(fb.Values)
	switch {
	case single && multi:
		return decl.Flux{}, dynamo.NewConfigError(unit, fb.Name, "flux sets both value and values:", dynamo.ErrArity)
	case single:
		if len(fb.Outputs) > 0 {
			return decl.Flux{}, dynamo.NewConfigError(unit, fb.Name, "single-valued flux must not list outputs:", dynamo.ErrArity)
		}
		e, err := Translate(fb.Value)
		if err != nil {
			return decl.Flux{}, dynamo.NewConfigError(unit, fb.Name, err.Error()+" in flux", dynamo.ErrArity)
		}
		return decl.Eq(fb.Name, e)
	case multi:
		tuple, ok := fb.Values.(*hclsyntax.TupleConsExpr)
		if !ok {
			return decl.Flux{}, dynamo.NewConfigError(unit, fb.Name, "values must be a list of expressions in flux", dynamo.ErrArity)
		}
		exprs := make([]decl.Expr, len(tuple.Exprs))
		for i, x := range tuple.Exprs {
			e, err := Translate(x)
			if err != nil {
				return decl.Flux{}, dynamo.NewConfigError(unit, fb.Name, err.Error()+" in flux", dynamo.ErrArity)
			}
			exprs[i] = e
		}
		return decl.NewExprFlux(fb.Name, fb.Outputs, exprs...)
	}
	return decl.Flux{}, dynamo.NewConfigError(unit, fb.Name, "flux sets neither value nor values:", dynamo.ErrArity)
}

// Units returns the declared unit names in file order.
func (l *Library) Units() []string { return slices.Clone(l.order) }

// Models returns the declared model names in file order.
func (l *Library) Models() []string { return slices.Clone(l.names) }

// Unit returns the unit declared as name.
func (l *Library) Unit(name string) (dynamo.Unit, bool) {
	u, ok := l.units[name]
	return u, ok
}

// Model wires the model declared as name. Without an inputs list the
// model reads every variable its units consume but none produces; without
// an outputs list it returns everything its units produce.
func (l *Library) Model(name string) (*model.Model, error) {
	mb, ok := l.models[name]
	if !ok {
		return nil, dynamo.NewConfigError("", name, "model not declared:", dynamo.ErrMissingInput)
	}
	units := make([]dynamo.Unit, len(mb.Units))
	for i, n := range mb.Units {
		units[i] = l.units[n]
	}

	inputs := mb.Inputs
	if inputs == nil {
		plan, err := resolve.Units(units)
		if err != nil {
			return nil, err
		}
		inputs = plan.External
	}
	var outputs []string
	if len(mb.Outputs) > 0 {
		outputs = mb.Outputs
	}
	if mb.Sort {
		return model.Sorted(mb.Name, units, inputs, outputs)
	}
	return model.New(mb.Name, units, inputs, outputs)
}
