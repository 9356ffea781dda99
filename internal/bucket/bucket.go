// Package bucket implements the basic storage unit: flux declarations
// coupled with state-rate declarations, compiled once and run over one or
// many nodes.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/san-kum/hydrosim/internal/compile"
	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/expand"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

// Bucket is an immutable compiled unit. Run may be called concurrently.
type Bucket struct {
	name   string
	kind   string
	fluxes []decl.Flux
	states []decl.StateFlux
	sig    decl.Signature
	cache  *compile.Cache

	// out computes the outputs from inputs and states.
	out *compile.Program
	// rate additionally computes one rate per state; nil when stateless.
	rate *compile.Program
}

type Option func(*Bucket)

// WithCache compiles through c instead of compile.Default.
func WithCache(c *compile.Cache) Option {
	return func(b *Bucket) { b.cache = c }
}

// WithKind sets the kind reported in traces and metrics.
func WithKind(kind string) Option {
	return func(b *Bucket) { b.kind = kind }
}

// New derives the unit's signature and compiles its evaluators. Cycles,
// duplicate names and malformed declarations fail here, before any run.
func New(name string, fluxes []decl.Flux, states []decl.StateFlux, opts ...Option) (*Bucket, error) {
	b := &Bucket{
		name:   name,
		kind:   "bucket",
		fluxes: slices.Clone(fluxes),
		states: slices.Clone(states),
		cache:  compile.Default,
	}
	for _, opt := range opts {
		opt(b)
	}

	sig, err := decl.Infer(name, fluxes, states)
	if err != nil {
		return nil, err
	}
	b.sig = sig

	given := append(slices.Clone(sig.Inputs), sig.States...)
	ctx := context.Background()
	b.out, err = b.cache.Build(ctx, name, fluxes, given)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return b, nil
	}

	all := slices.Clone(fluxes)
	for _, s := range states {
		all = append(all, s.AsFlux())
	}
	b.rate, err = b.cache.Build(ctx, name, all, given)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bucket) Name() string      { return b.name }
func (b *Bucket) Inputs() []string  { return b.sig.Inputs }
func (b *Bucket) Outputs() []string { return b.sig.Outputs }
func (b *Bucket) States() []string  { return b.sig.States }
func (b *Bucket) Params() []string  { return b.sig.Params }
func (b *Bucket) Blobs() []string   { return b.sig.Blobs }

// Signature returns the inferred roles of every symbol.
func (b *Bucket) Signature() decl.Signature { return b.sig }

// Order returns the evaluation order of derived variables, rates included.
func (b *Bucket) Order() []string {
	if b.rate != nil {
		return b.rate.Outputs()
	}
	return b.out.Outputs()
}

// Stateful reports whether the unit has state variables.
func (b *Bucket) Stateful() bool { return b.rate != nil }

// Run evaluates the unit over in, laid out [inputs][nodes][steps] in the
// order of Inputs. The result holds the states then the outputs, in
// declaration order. A stepper failure yields a NaN-filled result with
// Failure set instead of an error.
func (b *Bucket) Run(ctx context.Context, in *dynamo.Array, ps dynamo.ParamSet, cfg dynamo.RunConfig) (res *dynamo.Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := telemetry.StartRun(ctx, b.kind, b.name, in.Nodes(), in.Steps())
	logger := telemetry.WithUnit(telemetry.FromContext(ctx), b.name)
	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case res.Failed():
			status = "failed"
		}
		telemetry.UnitRuns.WithLabelValues(b.name, b.kind, status).Inc()
		telemetry.UnitRunDuration.WithLabelValues(b.kind).Observe(time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	r, err := b.prepare(in, ps, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("run start", "nodes", r.nodes, "steps", r.steps, "stateful", b.Stateful())

	if b.rate == nil {
		out, err := b.evalOutputs(r, nil)
		if err != nil {
			return nil, err
		}
		r.result.Data = out
		return r.result, nil
	}

	states, err := b.integrate(r)
	if err != nil {
		var se *dynamo.SolverError
		if !errors.As(err, &se) {
			return nil, err
		}
		r.result.Data = dynamo.NewArray(len(r.result.Names), r.nodes, r.steps)
		r.result.Data.Fill(math.NaN())
		r.result.Failure = err
		telemetry.SolverFailures.WithLabelValues(r.stepper.Name()).Inc()
		logger.Warn("solver failed, returning NaN trajectory",
			"stepper", r.stepper.Name(), "step", se.Step, "t", se.Time, "err", se.Wrapped)
		return r.result, nil
	}
	out, err := b.evalOutputs(r, states)
	if err != nil {
		return nil, err
	}
	if r.result.Data, err = dynamo.Concat(states, out); err != nil {
		return nil, err
	}
	logger.Debug("run done", "elapsed", time.Since(start))
	return r.result, nil
}

// run is the working state of one Run call.
type run struct {
	in      *dynamo.Array
	ps      dynamo.ParamSet
	nodes   int
	steps   int
	times   []float64
	init    map[string][]float64
	interp  dynamo.Interpolation
	stepper dynamo.Stepper
	result  *dynamo.Result
}

func (b *Bucket) prepare(in *dynamo.Array, ps dynamo.ParamSet, cfg dynamo.RunConfig) (*run, error) {
	vars, nodes, steps := in.Dims()
	if vars != len(b.sig.Inputs) {
		return nil, &dynamo.ShapeError{Unit: b.name, What: "input", Want: []int{len(b.sig.Inputs), nodes, steps}, Got: []int{vars, nodes, steps}}
	}
	if nodes < 1 || steps < 1 {
		return nil, &dynamo.ShapeError{Unit: b.name, What: "input", Want: []int{vars, max(nodes, 1), max(steps, 1)}, Got: []int{vars, nodes, steps}}
	}
	times := cfg.TimePoints(steps)
	if len(times) != steps {
		return nil, &dynamo.ShapeError{Unit: b.name, What: "time index", Want: []int{steps}, Got: []int{len(times)}}
	}
	if cfg.ClassIndex != nil && len(cfg.ClassIndex) != nodes {
		return nil, &dynamo.ShapeError{Unit: b.name, What: "class index", Want: []int{nodes}, Got: []int{len(cfg.ClassIndex)}}
	}

	ps, err := expand.Params(ps, cfg.ClassIndex)
	if err != nil {
		return nil, err
	}
	init, err := expand.States(cfg.InitStates, cfg.ClassIndex)
	if err != nil {
		return nil, err
	}
	for name := range init {
		if !slices.Contains(b.sig.States, name) {
			return nil, dynamo.NewConfigError(b.name, name, "initial value for unknown state", dynamo.ErrMissingState)
		}
	}

	stepper := cfg.Stepper
	if stepper == nil {
		stepper = integrators.NewEuler()
	}

	names := append(slices.Clone(b.sig.States), b.sig.Outputs...)
	return &run{
		in:      in,
		ps:      ps,
		nodes:   nodes,
		steps:   steps,
		times:   times,
		init:    init,
		interp:  cfg.Interp,
		stepper: stepper,
		result: &dynamo.Result{
			Names: names,
			Times: slices.Clone(times),
		},
	}, nil
}

// evalOutputs computes the output rows from the inputs and, for stateful
// units, the state rows of states. Uncoupled programs evaluate all steps in
// one shot; coupled ones step by step.
func (b *Bucket) evalOutputs(r *run, states *dynamo.Array) (*dynamo.Array, error) {
	p := b.out
	nStates := len(b.sig.States)
	nIn := len(b.sig.Inputs)
	out := dynamo.NewArray(len(b.sig.Outputs), r.nodes, r.steps)

	if !p.Coupled() {
		fr := p.NewFrame(r.steps * r.nodes)
		if err := p.BindParams(fr, r.ps, r.nodes); err != nil {
			return nil, err
		}
		for i := 0; i < nIn; i++ {
			fr.Vars[i] = r.in.Row(i)
		}
		for s := 0; s < nStates; s++ {
			fr.Vars[nIn+s] = states.Row(s)
		}
		if err := p.Eval(fr); err != nil {
			return nil, err
		}
		for j, name := range b.sig.Outputs {
			copy(out.Row(j), p.Out(fr, name))
		}
		return out, nil
	}

	fr := p.NewFrame(r.nodes)
	if err := p.BindParams(fr, r.ps, r.nodes); err != nil {
		return nil, err
	}
	for t := 0; t < r.steps; t++ {
		for i := 0; i < nIn; i++ {
			fr.Vars[i] = r.in.Lane(i, t)
		}
		for s := 0; s < nStates; s++ {
			fr.Vars[nIn+s] = states.Lane(s, t)
		}
		if err := p.Eval(fr); err != nil {
			return nil, err
		}
		for j, name := range b.sig.Outputs {
			copy(out.Lane(j, t), p.Out(fr, name))
		}
	}
	return out, nil
}

// integrate runs the stepper and returns the state rows.
func (b *Bucket) integrate(r *run) (*dynamo.Array, error) {
	p := b.rate
	n := r.nodes
	nIn := len(b.sig.Inputs)
	nStates := len(b.sig.States)

	x0, err := b.initialState(r)
	if err != nil {
		return nil, err
	}

	fr := p.NewFrame(n)
	if err := p.BindParams(fr, r.ps, n); err != nil {
		return nil, err
	}
	inputs := make([][]float64, nIn)
	for i := range inputs {
		inputs[i] = make([]float64, n)
		fr.Vars[i] = inputs[i]
	}
	rates := make([]int, nStates)
	for s, name := range b.sig.States {
		rates[s], _ = p.Slot(decl.RateName(name))
	}
	ip := dynamo.NewInterpolator(r.in, r.times, r.interp)

	// Errors raised by declarations are not solver failures; keep them
	// apart so they propagate unchanged.
	var evalErr error
	deriv := func(t float64, x, dx []float64) error {
		for i := range inputs {
			ip.Fill(i, t, inputs[i])
		}
		for s := 0; s < nStates; s++ {
			fr.Vars[nIn+s] = x[s*n : (s+1)*n]
		}
		if err := p.Eval(fr); err != nil {
			evalErr = err
			return err
		}
		for s, slot := range rates {
			copy(dx[s*n:(s+1)*n], fr.Vars[slot])
		}
		return nil
	}

	traj, err := r.stepper.Advance(deriv, x0, r.times)
	if evalErr != nil {
		return nil, evalErr
	}
	if err != nil {
		if errors.Is(err, dynamo.ErrSolver) {
			return nil, err
		}
		return nil, fmt.Errorf("unit %q: %w", b.name, err)
	}

	states := dynamo.NewArray(nStates, n, r.steps)
	for t := 0; t < r.steps; t++ {
		row := traj[t*nStates*n : (t+1)*nStates*n]
		for s := 0; s < nStates; s++ {
			copy(states.Lane(s, t), row[s*n:(s+1)*n])
		}
	}
	return states, nil
}

func (b *Bucket) initialState(r *run) (dynamo.State, error) {
	n := r.nodes
	x0 := make(dynamo.State, len(b.sig.States)*n)
	for s, name := range b.sig.States {
		v, ok := r.init[name]
		if !ok {
			continue
		}
		lane := x0[s*n : (s+1)*n]
		switch len(v) {
		case 1:
			for k := range lane {
				lane[k] = v[0]
			}
		case n:
			copy(lane, v)
		default:
			return nil, &dynamo.ShapeError{Unit: b.name, What: fmt.Sprintf("initial state %q", name), Want: []int{n}, Got: []int{len(v)}}
		}
	}
	return x0, nil
}
