// Package model composes units into a runnable model wired purely by
// variable name.
package model

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/resolve"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

// Model is an ordered composition of units. All slicing indices are fixed
// at construction; Run only copies rows.
type Model struct {
	name    string
	units   []dynamo.Unit
	inputs  []string
	outputs []string
	params  []string
	states  []string

	// known lists every variable in the order it becomes available:
	// model inputs, then each unit's states and outputs.
	known []string
	// take[i] indexes known for the inputs of units[i].
	take [][]int
	// selection indexes known for the model outputs.
	selection []int
}

// New wires units in the given order. Every unit input must be a model
// input or produced by an earlier unit; otherwise New fails naming it.
// A nil outputs selects every variable the units produce.
func New(name string, units []dynamo.Unit, inputs, outputs []string) (*Model, error) {
	m := &Model{
		name:   name,
		units:  slices.Clone(units),
		inputs: slices.Clone(inputs),
		known:  slices.Clone(inputs),
	}
	index := make(map[string]int, len(inputs))
	for i, in := range inputs {
		if _, dup := index[in]; dup {
			return nil, dynamo.NewConfigError(name, in, "model input listed twice", dynamo.ErrDuplicate)
		}
		index[in] = i
	}

	for _, u := range units {
		take := make([]int, 0, len(u.Inputs()))
		for _, in := range u.Inputs() {
			i, ok := index[in]
			if !ok {
				return nil, dynamo.NewConfigError(u.Name(), in, "input is neither a model input nor produced by an earlier unit:", dynamo.ErrMissingInput)
			}
			take = append(take, i)
		}
		m.take = append(m.take, take)

		produced := append(slices.Clone(u.States()), u.Outputs()...)
		for _, p := range produced {
			if _, dup := index[p]; dup {
				return nil, dynamo.NewConfigError(u.Name(), p, "variable already produced by the model:", dynamo.ErrDuplicate)
			}
			index[p] = len(m.known)
			m.known = append(m.known, p)
		}
		m.states = append(m.states, u.States()...)
		for _, p := range u.Params() {
			if !slices.Contains(m.params, p) {
				m.params = append(m.params, p)
			}
		}
	}

	if outputs == nil {
		outputs = m.known[len(inputs):]
	}
	m.outputs = slices.Clone(outputs)
	for _, o := range outputs {
		i, ok := index[o]
		if !ok {
			return nil, dynamo.NewConfigError(name, o, "requested output is not produced by any unit:", dynamo.ErrMissingInput)
		}
		m.selection = append(m.selection, i)
	}
	return m, nil
}

// Sorted orders units by their name dependencies before wiring them. Units
// already in dependency order are wired as given.
func Sorted(name string, units []dynamo.Unit, inputs, outputs []string) (*Model, error) {
	if resolve.Valid(units, resolve.UnitIO) {
		return New(name, units, inputs, outputs)
	}
	plan, err := resolve.Units(units)
	if err != nil {
		return nil, err
	}
	return New(name, plan.Order, inputs, outputs)
}

func (m *Model) Name() string         { return m.name }
func (m *Model) Inputs() []string     { return m.inputs }
func (m *Model) Outputs() []string    { return m.outputs }
func (m *Model) Params() []string     { return m.params }
func (m *Model) Units() []dynamo.Unit { return m.units }
func (m *Model) Variables() []string  { return m.known }
func (m *Model) UnitStates() []string { return m.states }

// States is empty: a model exposes unit states only through its outputs.
func (m *Model) States() []string { return nil }

type rowRef struct {
	arr *dynamo.Array
	row int
}

// Run feeds in, laid out in the order of Inputs, through every unit and
// returns the selected outputs. The first unit solver failure is reported
// on the result; later units still run on its NaN rows.
func (m *Model) Run(ctx context.Context, in *dynamo.Array, ps dynamo.ParamSet, cfg dynamo.RunConfig) (res *dynamo.Result, err error) {
	if in.Vars() != len(m.inputs) {
		return nil, &dynamo.ShapeError{Unit: m.name, What: "input", Want: []int{len(m.inputs), in.Nodes(), in.Steps()}, Got: []int{in.Vars(), in.Nodes(), in.Steps()}}
	}
	for name := range cfg.InitStates {
		if !slices.Contains(m.states, name) {
			return nil, dynamo.NewConfigError(m.name, name, "initial value for unknown state", dynamo.ErrMissingState)
		}
	}
	start := time.Now()
	ctx, span := telemetry.StartRun(ctx, "model", m.name, in.Nodes(), in.Steps())
	logger := telemetry.WithUnit(telemetry.FromContext(ctx), m.name)
	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case res.Failed():
			status = "failed"
		}
		telemetry.UnitRuns.WithLabelValues(m.name, "model", status).Inc()
		telemetry.UnitRunDuration.WithLabelValues("model").Observe(time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	rows := make([]rowRef, 0, len(m.known))
	for v := range m.inputs {
		rows = append(rows, rowRef{arr: in, row: v})
	}

	var times []float64
	var failure error
	for i, u := range m.units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		unitIn := dynamo.NewArray(len(m.take[i]), in.Nodes(), in.Steps())
		for j, k := range m.take[i] {
			copy(unitIn.Row(j), rows[k].arr.Row(rows[k].row))
		}

		ucfg := cfg
		ucfg.InitStates = initFor(u, cfg.InitStates)
		out, err := u.Run(ctx, unitIn, ps, ucfg)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.name, err)
		}
		if out.Failed() && failure == nil {
			failure = fmt.Errorf("unit %q: %w", u.Name(), out.Failure)
			logger.Warn("unit failed, continuing with NaN rows", "failed_unit", u.Name())
		}
		if want := len(u.States()) + len(u.Outputs()); len(out.Names) != want {
			return nil, fmt.Errorf("model %q: unit %q returned %d rows, want %d", m.name, u.Name(), len(out.Names), want)
		}
		times = out.Times
		for r := range out.Names {
			rows = append(rows, rowRef{arr: out.Data, row: r})
		}
	}

	data := dynamo.NewArray(len(m.selection), in.Nodes(), in.Steps())
	for j, k := range m.selection {
		copy(data.Row(j), rows[k].arr.Row(rows[k].row))
	}
	if times == nil {
		times = cfg.TimePoints(in.Steps())
	}
	return &dynamo.Result{
		Names:   slices.Clone(m.outputs),
		Times:   times,
		Data:    data,
		Failure: failure,
	}, nil
}

func initFor(u dynamo.Unit, init map[string][]float64) map[string][]float64 {
	if init == nil {
		return nil
	}
	out := make(map[string][]float64)
	for _, s := range u.States() {
		if v, ok := init[s]; ok {
			out[s] = v
		}
	}
	return out
}
