// Package compile turns an ordered list of flux declarations into a Program
// that computes every derived variable of a unit in one pass.
//
// A Program evaluates over a Frame of lanes. A lane is either a single value
// broadcast to the whole frame or one value per column. Callers pick the
// frame width: the node count for per-step evaluation inside a stepper, or
// steps*nodes to evaluate a stateless unit over materialised arrays in one
// shot. Lanes shorter than the width are cycled, so per-node parameters
// broadcast over the time axis of a [time][node] frame.
package compile

import (
	"fmt"
	"slices"

	"github.com/san-kum/hydrosim/internal/decl"
	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Program is an immutable compiled evaluator. It is safe for concurrent use
// as long as every caller owns its Frame.
type Program struct {
	unit    string
	given   []string
	outputs []string
	params  []string
	blobs   []string
	slots   map[string]int
	steps   []step
	coupled bool
}

type step struct {
	flux decl.Flux
	// args index Frame.Vars for inputs.
	args   []int
	params []int
	blob   int
	outs   []int
	exprs  []scalar
}

// scalar evaluates one expression at column k.
type scalar func(fr *Frame, k int) float64

// Compile builds a program for fluxes, which must already be in dependency
// order. given names the variables the caller supplies; every other name a
// flux reads must be produced by an earlier flux.
func Compile(unit string, fluxes []decl.Flux, given []string) (*Program, error) {
	p := &Program{
		unit:  unit,
		given: slices.Clone(given),
		slots: make(map[string]int, len(given)),
	}
	for i, g := range given {
		if _, dup := p.slots[g]; dup {
			return nil, dynamo.NewConfigError(unit, g, "variable supplied twice", dynamo.ErrDuplicate)
		}
		p.slots[g] = i
	}
	paramSlot := make(map[string]int)
	blobSlot := make(map[string]int)

	for _, f := range fluxes {
		st := step{flux: f, blob: -1}
		for _, in := range f.Inputs {
			s, ok := p.slots[in]
			if !ok {
				return nil, dynamo.NewConfigError(unit, in, "flux "+f.Name+" reads unknown or later variable", dynamo.ErrMissingInput)
			}
			st.args = append(st.args, s)
		}
		for _, name := range f.Params {
			s, ok := paramSlot[name]
			if !ok {
				s = len(p.params)
				paramSlot[name] = s
				p.params = append(p.params, name)
			}
			st.params = append(st.params, s)
		}
		if f.Blob != "" {
			s, ok := blobSlot[f.Blob]
			if !ok {
				s = len(p.blobs)
				blobSlot[f.Blob] = s
				p.blobs = append(p.blobs, f.Blob)
			}
			st.blob = s
		}
		for _, e := range f.Exprs {
			fn, err := p.compileExpr(e, paramSlot)
			if err != nil {
				return nil, dynamo.NewConfigError(unit, f.Name, err.Error()+" in flux", dynamo.ErrArity)
			}
			st.exprs = append(st.exprs, fn)
		}
		for _, o := range f.Outputs {
			if _, dup := p.slots[o]; dup {
				return nil, dynamo.NewConfigError(unit, o, "variable produced twice", dynamo.ErrDuplicate)
			}
			st.outs = append(st.outs, len(p.given)+len(p.outputs))
			p.slots[o] = len(p.given) + len(p.outputs)
			p.outputs = append(p.outputs, o)
		}
		p.coupled = p.coupled || f.Coupled
		p.steps = append(p.steps, st)
	}
	return p, nil
}

func (p *Program) compileExpr(e decl.Expr, paramSlot map[string]int) (scalar, error) {
	switch n := e.(type) {
	case decl.Num:
		v := float64(n)
		return func(*Frame, int) float64 { return v }, nil

	case decl.Ref:
		if n.Param {
			s, ok := paramSlot[n.Name]
			if !ok {
				return nil, fmt.Errorf("undeclared parameter %q", n.Name)
			}
			return func(fr *Frame, k int) float64 { return pick(fr.Params[s], k) }, nil
		}
		s, ok := p.slots[n.Name]
		if !ok {
			return nil, fmt.Errorf("unknown variable %q", n.Name)
		}
		return func(fr *Frame, k int) float64 { return pick(fr.Vars[s], k) }, nil

	case decl.Unary:
		x, err := p.compileExpr(n.X, paramSlot)
		if err != nil {
			return nil, err
		}
		if n.Op == "!" {
			return func(fr *Frame, k int) float64 {
				if x(fr, k) == 0 {
					return 1
				}
				return 0
			}, nil
		}
		return func(fr *Frame, k int) float64 { return -x(fr, k) }, nil

	case decl.Binary:
		op, ok := decl.BinaryOp(n.Op)
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", n.Op)
		}
		l, err := p.compileExpr(n.L, paramSlot)
		if err != nil {
			return nil, err
		}
		r, err := p.compileExpr(n.R, paramSlot)
		if err != nil {
			return nil, err
		}
		return func(fr *Frame, k int) float64 { return op(l(fr, k), r(fr, k)) }, nil

	case decl.Cond:
		c, err := p.compileExpr(n.If, paramSlot)
		if err != nil {
			return nil, err
		}
		a, err := p.compileExpr(n.Then, paramSlot)
		if err != nil {
			return nil, err
		}
		b, err := p.compileExpr(n.Else, paramSlot)
		if err != nil {
			return nil, err
		}
		return func(fr *Frame, k int) float64 {
			if c(fr, k) != 0 {
				return a(fr, k)
			}
			return b(fr, k)
		}, nil

	case decl.Call:
		return p.compileCall(n, paramSlot)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (p *Program) compileCall(c decl.Call, paramSlot map[string]int) (scalar, error) {
	fn, ok := decl.Funcs[c.Fn]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", c.Fn)
	}
	args := make([]scalar, len(c.Args))
	for i, a := range c.Args {
		s, err := p.compileExpr(a, paramSlot)
		if err != nil {
			return nil, err
		}
		args[i] = s
	}

	switch {
	case fn.Arity == 1 && len(args) == 1:
		f, x := fn.F1, args[0]
		return func(fr *Frame, k int) float64 { return f(x(fr, k)) }, nil
	case fn.Arity == 2 && len(args) == 2:
		f, x, y := fn.F2, args[0], args[1]
		return func(fr *Frame, k int) float64 { return f(x(fr, k), y(fr, k)) }, nil
	case fn.Arity == 3 && len(args) == 3:
		f, x, y, z := fn.F3, args[0], args[1], args[2]
		return func(fr *Frame, k int) float64 { return f(x(fr, k), y(fr, k), z(fr, k)) }, nil
	case fn.Arity < 0 && len(args) >= 2:
		f := fn.F2
		return func(fr *Frame, k int) float64 {
			acc := args[0](fr, k)
			for _, a := range args[1:] {
				acc = f(acc, a(fr, k))
			}
			return acc
		}, nil
	}
	return nil, fmt.Errorf("function %q takes %d arguments, got %d", c.Fn, fn.Arity, len(args))
}

func pick(lane []float64, k int) float64 {
	if len(lane) == 1 {
		return lane[0]
	}
	return lane[k%len(lane)]
}

// Unit returns the name of the unit the program was compiled for.
func (p *Program) Unit() string { return p.unit }

// Given returns the caller-supplied variables in slot order.
func (p *Program) Given() []string { return p.given }

// Outputs returns the derived variables in evaluation order. Their slots
// follow the given slots.
func (p *Program) Outputs() []string { return p.outputs }

// Params returns the parameters read by the program in first-use order.
func (p *Program) Params() []string { return p.params }

// Blobs returns the opaque weight vectors read by sub-model fluxes.
func (p *Program) Blobs() []string { return p.blobs }

// Coupled reports whether some flux reads across columns and therefore
// must be evaluated one step at a time.
func (p *Program) Coupled() bool { return p.coupled }

// Slot returns the Frame.Vars index holding name.
func (p *Program) Slot(name string) (int, bool) {
	s, ok := p.slots[name]
	return s, ok
}

// Frame is the working memory of one evaluation. Vars holds one lane per
// given variable followed by one lane per output; output lanes are owned by
// the frame and overwritten by every Eval.
type Frame struct {
	Width  int
	Vars   [][]float64
	Params [][]float64
	Blobs  [][]float64

	scratch [][]float64
	args    [][]float64
	outs    [][]float64
}

// NewFrame allocates a frame of the given width. Callers fill the given
// lanes, Params and Blobs before calling Eval.
func (p *Program) NewFrame(width int) *Frame {
	fr := &Frame{
		Width:  width,
		Vars:   make([][]float64, len(p.given)+len(p.outputs)),
		Params: make([][]float64, len(p.params)),
		Blobs:  make([][]float64, len(p.blobs)),
	}
	for i := range p.outputs {
		fr.Vars[len(p.given)+i] = make([]float64, width)
	}
	return fr
}

// BindParams looks up every parameter and blob of the program in ps. A
// missing name fails with ErrMissingParam naming it.
func (p *Program) BindParams(fr *Frame, ps dynamo.ParamSet, nodes int) error {
	for i, name := range p.params {
		v, err := ps.Lookup(p.unit, name, nodes)
		if err != nil {
			return err
		}
		fr.Params[i] = v
	}
	for i, name := range p.blobs {
		v, err := ps.Blob(p.unit, name)
		if err != nil {
			return err
		}
		fr.Blobs[i] = v
	}
	return nil
}

// Eval computes every output of the program into fr. Errors returned by
// kernels propagate immediately; NaN and Inf are ordinary values.
func (p *Program) Eval(fr *Frame) error {
	for i := range p.steps {
		st := &p.steps[i]
		if st.exprs != nil {
			for j, fn := range st.exprs {
				out := fr.Vars[st.outs[j]]
				for k := 0; k < fr.Width; k++ {
					out[k] = fn(fr, k)
				}
			}
			continue
		}
		if err := p.evalKernel(fr, st); err != nil {
			return fmt.Errorf("unit %q: flux %s: %w", p.unit, st.flux.Name, err)
		}
	}
	return nil
}

func (p *Program) evalKernel(fr *Frame, st *step) error {
	fr.args = fr.args[:0]
	n := 0
	for _, s := range st.args {
		fr.args = append(fr.args, fr.lane(fr.Vars[s], &n))
	}
	for _, s := range st.params {
		fr.args = append(fr.args, fr.lane(fr.Params[s], &n))
	}
	if st.blob >= 0 {
		fr.args = append(fr.args, fr.Blobs[st.blob])
	}
	fr.outs = fr.outs[:0]
	for _, s := range st.outs {
		fr.outs = append(fr.outs, fr.Vars[s])
	}
	return st.flux.Kernel(fr.args, fr.outs)
}

// lane returns l if kernels can index it directly, or a tiled copy of width
// Width held in the frame's scratch space.
func (fr *Frame) lane(l []float64, n *int) []float64 {
	if len(l) == 1 || len(l) == fr.Width {
		return l
	}
	if *n == len(fr.scratch) {
		fr.scratch = append(fr.scratch, make([]float64, fr.Width))
	}
	buf := fr.scratch[*n]
	*n++
	for k := range buf {
		buf[k] = l[k%len(l)]
	}
	return buf
}

// Out returns the lane of output name.
func (p *Program) Out(fr *Frame, name string) []float64 {
	s, ok := p.slots[name]
	if !ok || s < len(p.given) {
		return nil
	}
	return fr.Vars[s]
}
