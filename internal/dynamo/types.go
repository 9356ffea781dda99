package dynamo

import (
	"context"
	"math"
)

// State is a flattened state vector laid out as [state][node].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// Finite reports whether every entry is a real number. Steppers use it to
// reject trial states; accepted NaN entries remain data.
func (s State) Finite() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Derivative evaluates the change of state at time t into dx. Fixed-step
// steppers apply dx as the whole increment of a step; the scaled and
// adaptive ones treat it as d(state)/dt. x and dx share the [state][node]
// layout.
type Derivative func(t float64, x, dx []float64) error

// Stepper advances a state vector over declared time points. The returned
// trajectory has len(times)*len(x0) values laid out as [time][state][node]
// and its first row equals x0.
type Stepper interface {
	Name() string
	Advance(f Derivative, x0 State, times []float64) ([]float64, error)
}

// Interpolation selects how inputs are read between declared time points.
type Interpolation int

const (
	Linear Interpolation = iota
	Constant
)

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case Constant:
		return "constant"
	default:
		return "unknown"
	}
}

// RunConfig carries the per-run knobs shared by every Unit.
type RunConfig struct {
	// Times are the declared time points; nil means 0..steps-1.
	Times []float64
	// Stepper integrates stateful units; nil selects explicit fixed-step.
	Stepper Stepper
	// InitStates maps state names to one value or one value per node.
	// Missing states start at zero.
	InitStates map[string][]float64
	Interp     Interpolation
	// ClassIndex maps each node to a parameter class. When set, parameters
	// with one value per class are expanded to one value per node.
	ClassIndex []int
}

// TimePoints returns cfg.Times or the default 0..steps-1 sequence.
func (cfg RunConfig) TimePoints(steps int) []float64 {
	if cfg.Times != nil {
		return cfg.Times
	}
	ts := make([]float64, steps)
	for i := range ts {
		ts[i] = float64(i)
	}
	return ts
}

// Unit is a runnable component wired by variable name.
type Unit interface {
	Name() string
	Inputs() []string
	Outputs() []string
	States() []string
	Params() []string
	Run(ctx context.Context, in *Array, ps ParamSet, cfg RunConfig) (*Result, error)
}

// Result holds one run's rows, always states first then outputs.
type Result struct {
	Names []string
	Times []float64
	Data  *Array
	// Failure is set when the solver did not converge; Data is NaN-filled.
	Failure error
}

// Index returns the row of name in r, or -1.
func (r *Result) Index(name string) int {
	for i, n := range r.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Series returns a copy of one variable's time series at node.
func (r *Result) Series(name string, node int) ([]float64, bool) {
	i := r.Index(name)
	if i < 0 {
		return nil, false
	}
	return r.Data.Series(i, node), true
}

// Failed reports whether the run produced a flagged failure trajectory.
func (r *Result) Failed() bool {
	return r.Failure != nil
}
