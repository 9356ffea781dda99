package decl

import (
	"fmt"
	"slices"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Kernel computes a declaration's outputs. args holds one lane per input
// followed by one lane per parameter (and the blob, for sub-models); a lane
// has length one (broadcast) or the evaluation width. out holds one lane of
// the evaluation width per output. Kernels must be pure.
type Kernel func(args [][]float64, out [][]float64) error

// Flux is an immutable named relationship producing Outputs from Inputs and
// Params. Exactly one of Exprs (one per output) or Kernel is set.
type Flux struct {
	Name    string
	Inputs  []string
	Params  []string
	Outputs []string
	Exprs   []Expr
	Kernel  Kernel
	// Blob names the opaque weight vector passed after Params, if any.
	Blob string
	// Coupled marks kernels that read across nodes within one step, such as
	// network aggregation. Coupled fluxes are never evaluated over the time
	// axis in one shot.
	Coupled bool
}

// StateFlux declares the rate of change of one state variable.
type StateFlux struct {
	State  string
	Inputs []string
	Params []string
	Rate   Expr
	Kernel Kernel
}

// RateName is the internal variable holding the rate of state.
func RateName(state string) string {
	return state + "'"
}

// NewFlux builds a kernel-backed flux.
func NewFlux(name string, inputs, params, outputs []string, k Kernel) (Flux, error) {
	f := Flux{
		Name:    name,
		Inputs:  slices.Clone(inputs),
		Params:  slices.Clone(params),
		Outputs: slices.Clone(outputs),
		Kernel:  k,
	}
	if k == nil {
		return Flux{}, dynamo.NewConfigError("", name, "nil kernel for flux", dynamo.ErrArity)
	}
	if len(outputs) == 0 {
		return Flux{}, dynamo.NewConfigError("", name, "no outputs for flux", dynamo.ErrArity)
	}
	return f, f.checkNames()
}

// NewExprFlux builds a flux from one expression per output. Inputs and
// parameters are inferred from the references in exprs.
func NewExprFlux(name string, outputs []string, exprs ...Expr) (Flux, error) {
	if len(outputs) == 0 || len(outputs) != len(exprs) {
		return Flux{}, dynamo.NewConfigError("", name,
			fmt.Sprintf("%d outputs but %d expressions for flux", len(outputs), len(exprs)), dynamo.ErrArity)
	}
	f := Flux{Name: name, Outputs: slices.Clone(outputs), Exprs: slices.Clone(exprs)}
	for _, e := range exprs {
		if err := Check(e); err != nil {
			return Flux{}, dynamo.NewConfigError("", name, err.Error()+" in flux", dynamo.ErrArity)
		}
		vars, params := Refs(e)
		f.Inputs = appendNew(f.Inputs, vars...)
		f.Params = appendNew(f.Params, params...)
	}
	return f, f.checkNames()
}

// Eq is shorthand for a single-output expression flux named after output.
func Eq(output string, e Expr) (Flux, error) {
	return NewExprFlux(output, []string{output}, e)
}

// NewState builds a kernel-backed state flux; k writes one output lane.
func NewState(state string, inputs, params []string, k Kernel) (StateFlux, error) {
	if k == nil {
		return StateFlux{}, dynamo.NewConfigError("", state, "nil kernel for state", dynamo.ErrArity)
	}
	return StateFlux{State: state, Inputs: slices.Clone(inputs), Params: slices.Clone(params), Kernel: k}, nil
}

// NewExprState builds a state flux whose rate is e. The state itself may be
// referenced by e.
func NewExprState(state string, e Expr) (StateFlux, error) {
	if err := Check(e); err != nil {
		return StateFlux{}, dynamo.NewConfigError("", state, err.Error()+" in rate of state", dynamo.ErrArity)
	}
	vars, params := Refs(e)
	return StateFlux{State: state, Inputs: vars, Params: params, Rate: e}, nil
}

// AsFlux views s as a flux producing RateName(s.State).
func (s StateFlux) AsFlux() Flux {
	f := Flux{
		Name:    RateName(s.State),
		Inputs:  s.Inputs,
		Params:  s.Params,
		Outputs: []string{RateName(s.State)},
		Kernel:  s.Kernel,
	}
	if s.Rate != nil {
		f.Exprs = []Expr{s.Rate}
	}
	return f
}

func (f Flux) checkNames() error {
	seen := make(map[string]bool, len(f.Outputs))
	for _, o := range f.Outputs {
		if seen[o] {
			return dynamo.NewConfigError("", o, "output declared twice in flux "+f.Name+":", dynamo.ErrDuplicate)
		}
		seen[o] = true
		if slices.Contains(f.Inputs, o) {
			return dynamo.NewConfigError("", o, "flux "+f.Name+" reads its own output", dynamo.ErrCycle)
		}
	}
	return nil
}

func appendNew(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}
