// Package experiment turns a run configuration into a wired model, its
// forcing and run settings, and runs it once or as a perturbed ensemble.
package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/san-kum/hydrosim/internal/bucket"
	"github.com/san-kum/hydrosim/internal/compile"
	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/loader"
	"github.com/san-kum/hydrosim/internal/model"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/route"
	"github.com/san-kum/hydrosim/internal/storage"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

type Experiment struct {
	cfg     *config.Config
	model   *model.Model
	forcing *storage.Forcing
	inputs  *dynamo.Array
	run     dynamo.RunConfig
}

// New validates cfg and prepares everything a run needs. Built-in models
// come from reg; cfg.ModelFile switches to models declared in HCL. cfg is
// not modified.
func New(ctx context.Context, cfg *config.Config, reg *models.Registry) (*Experiment, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	topo, err := cfg.Network()
	if err != nil {
		return nil, err
	}
	bopts := []bucket.Option{bucket.WithCache(compile.NewCache())}

	e := &Experiment{cfg: cfg}
	if cfg.ModelFile != "" {
		lib, err := loader.LoadFile(ctx, cfg.ModelFile, loader.Options{Topology: topo, Bucket: bopts})
		if err != nil {
			return nil, err
		}
		if e.model, err = lib.Model(cfg.Model); err != nil {
			return nil, err
		}
	} else {
		entry, err := reg.Get(cfg.Model)
		if err != nil {
			return nil, err
		}
		cfg.WithDefaults(entry.Params, entry.InitStates)
		e.model, err = reg.Build(cfg.Model, models.Options{
			Topology: topo,
			Weighted: cfg.Topology.Aggregate == "weighted",
			Bucket:   bopts,
		})
		if err != nil {
			return nil, err
		}
	}
	if len(cfg.Outputs) > 0 {
		if e.model, err = model.New(e.model.Name(), e.model.Units(), e.model.Inputs(), cfg.Outputs); err != nil {
			return nil, err
		}
	}
	if topo != nil && topo.Nodes() != cfg.Nodes {
		return nil, dynamo.NewConfigError(cfg.Model, "", fmt.Sprintf("network has %d nodes, config has %d:", topo.Nodes(), cfg.Nodes), dynamo.ErrTopology)
	}

	if err := e.loadForcing(); err != nil {
		return nil, err
	}
	steps := cfg.Steps
	if e.forcing != nil {
		steps = e.forcing.Steps()
		if cfg.Steps > 0 && cfg.Steps < steps {
			steps = cfg.Steps
		}
		e.inputs, err = e.forcing.Array(e.model.Inputs(), cfg.Nodes)
		if err != nil {
			return nil, err
		}
		e.inputs = truncate(e.inputs, steps)
	} else {
		if len(e.model.Inputs()) > 0 {
			return nil, dynamo.NewConfigError(cfg.Model, e.model.Inputs()[0], "no forcing for input", dynamo.ErrMissingInput)
		}
		e.inputs = dynamo.NewArray(0, cfg.Nodes, steps)
	}

	if e.run, err = cfg.RunConfig(steps); err != nil {
		return nil, err
	}
	if e.forcing != nil && e.forcing.Times != nil {
		e.run.Times = e.forcing.Times[:steps]
	}
	telemetry.FromContext(ctx).Debug("experiment prepared",
		"model", cfg.Model, "nodes", cfg.Nodes, "steps", steps, "method", cfg.Solver.Method)
	return e, nil
}

func (e *Experiment) loadForcing() error {
	if e.cfg.Forcing != "" {
		f, err := os.Open(e.cfg.Forcing)
		if err != nil {
			return err
		}
		defer f.Close()
		if e.forcing, err = storage.ReadForcing(f); err != nil {
			return err
		}
	}
	if len(e.cfg.Series) == 0 {
		return nil
	}
	if e.forcing == nil {
		e.forcing = &storage.Forcing{}
	}
	names := make([]string, 0, len(e.cfg.Series))
	for name := range e.cfg.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.forcing.Set(name, e.cfg.Series[name]); err != nil {
			return err
		}
	}
	return nil
}

func truncate(a *dynamo.Array, steps int) *dynamo.Array {
	if a.Steps() == steps {
		return a
	}
	out := dynamo.NewArray(a.Vars(), a.Nodes(), steps)
	for v := 0; v < a.Vars(); v++ {
		for n := 0; n < a.Nodes(); n++ {
			for t := 0; t < steps; t++ {
				out.Set(v, n, t, a.At(v, n, t))
			}
		}
	}
	return out
}

func (e *Experiment) Config() *config.Config { return e.cfg }
func (e *Experiment) Model() *model.Model    { return e.model }
func (e *Experiment) Inputs() *dynamo.Array  { return e.inputs }

// Forcing returns the shared input series at node, keyed by name.
func (e *Experiment) Forcing(node int) map[string][]float64 {
	out := make(map[string][]float64, len(e.model.Inputs()))
	for v, name := range e.model.Inputs() {
		out[name] = e.inputs.Series(v, node)
	}
	return out
}

// Run runs the model once with the configured parameters.
func (e *Experiment) Run(ctx context.Context) (*dynamo.Result, error) {
	return e.RunWith(ctx, e.cfg.ParamSet())
}

func (e *Experiment) RunWith(ctx context.Context, ps dynamo.ParamSet) (*dynamo.Result, error) {
	start := time.Now()
	res, err := e.model.Run(ctx, e.inputs, ps, e.run)
	if err != nil {
		return nil, err
	}
	telemetry.FromContext(ctx).Info("run finished",
		"model", e.cfg.Model, "elapsed", time.Since(start), "failed", res.Failed())
	return res, nil
}

// Members draws the ensemble parameter sets. Each parameter of each member
// is scaled by one factor drawn uniformly from [1-spread, 1+spread]; draws
// depend only on the seed.
func (e *Experiment) Members() []dynamo.ParamSet {
	ens := e.cfg.Ensemble
	base := e.cfg.ParamSet()
	names := base.Names()

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	sets := make([]dynamo.ParamSet, ens.Members)
	for i := range sets {
		ps := base
		for _, name := range names {
			factor := 1 + ens.Spread*(2*rng.Float64()-1)
			values := slices.Clone(base.Values[name])
			for j := range values {
				values[j] *= factor
			}
			ps = ps.With(name, values...)
		}
		sets[i] = ps
	}
	return sets
}

// Ensemble runs every member concurrently; results keep member order.
func (e *Experiment) Ensemble(ctx context.Context) ([]dynamo.ParamSet, []*dynamo.Result, error) {
	sets := e.Members()
	if len(sets) == 0 {
		return nil, nil, fmt.Errorf("ensemble needs at least one member")
	}
	results, err := dynamo.NewEnsemble(e.RunWith, 0).Run(ctx, sets)
	return sets, results, err
}

// Metadata describes a run of this experiment for storage.
func (e *Experiment) Metadata(ps dynamo.ParamSet) storage.RunMetadata {
	return storage.RunMetadata{
		Model:         e.cfg.Model,
		Seed:          e.cfg.Seed,
		Method:        e.cfg.Solver.Method,
		Interpolation: e.run.Interp.String(),
		Params:        ps.Values,
	}
}

// Topology returns the configured network, or nil.
func (e *Experiment) Topology() *route.Topology {
	topo, _ := e.cfg.Network()
	return topo
}
