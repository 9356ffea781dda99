package decl

import (
	"fmt"
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Submodel is an opaque differentiable function such as a small neural
// network. It maps one flattened input vector to one flattened output vector
// given a flattened parameter vector.
type Submodel interface {
	Arity() (in, out int)
	NumParams() int
	Apply(input, params, output []float64) error
}

// NewSubmodelFlux wraps m as a flux. Its weights are read from the parameter
// blob named blob and shared verbatim by every node.
func NewSubmodelFlux(name string, inputs, outputs []string, blob string, m Submodel) (Flux, error) {
	in, out := m.Arity()
	if in != len(inputs) || out != len(outputs) {
		return Flux{}, dynamo.NewConfigError("", name,
			fmt.Sprintf("submodel takes %d->%d values but flux declares %d->%d", in, out, len(inputs), len(outputs)),
			dynamo.ErrArity)
	}
	f, err := NewFlux(name, inputs, nil, outputs, submodelKernel(name, m))
	if err != nil {
		return Flux{}, err
	}
	f.Blob = blob
	return f, nil
}

func submodelKernel(name string, m Submodel) Kernel {
	in, out := m.Arity()
	want := m.NumParams()
	return func(args [][]float64, outs [][]float64) error {
		weights := args[in]
		if len(weights) != want {
			return dynamo.NewConfigError("", name,
				fmt.Sprintf("submodel wants %d weights, got %d, for flux", want, len(weights)), dynamo.ErrArity)
		}
		x := make([]float64, in)
		y := make([]float64, out)
		width := len(outs[0])
		for k := 0; k < width; k++ {
			for j := 0; j < in; j++ {
				x[j] = at(args[j], k)
			}
			if err := m.Apply(x, weights, y); err != nil {
				return fmt.Errorf("submodel %s: %w", name, err)
			}
			for j := 0; j < out; j++ {
				outs[j][k] = y[j]
			}
		}
		return nil
	}
}

func at(lane []float64, k int) float64 {
	if len(lane) == 1 {
		return lane[0]
	}
	return lane[k]
}

// Dense is a one-hidden-layer tanh network: y = W2 tanh(W1 x + b1) + b2.
// Weights are flattened as W1 (hidden x in, row-major), b1, W2 (out x
// hidden), b2.
type Dense struct {
	In, Hidden, Out int
}

func NewDense(in, hidden, out int) *Dense {
	return &Dense{In: in, Hidden: hidden, Out: out}
}

func (d *Dense) Arity() (int, int) { return d.In, d.Out }

func (d *Dense) NumParams() int {
	return d.Hidden*d.In + d.Hidden + d.Out*d.Hidden + d.Out
}

func (d *Dense) Apply(x, w, y []float64) error {
	if len(w) != d.NumParams() {
		return fmt.Errorf("dense: %d weights, want %d", len(w), d.NumParams())
	}
	w1 := w[:d.Hidden*d.In]
	b1 := w[d.Hidden*d.In : d.Hidden*d.In+d.Hidden]
	off := d.Hidden*d.In + d.Hidden
	w2 := w[off : off+d.Out*d.Hidden]
	b2 := w[off+d.Out*d.Hidden:]

	h := make([]float64, d.Hidden)
	for i := 0; i < d.Hidden; i++ {
		s := b1[i]
		for j := 0; j < d.In; j++ {
			s += w1[i*d.In+j] * x[j]
		}
		h[i] = math.Tanh(s)
	}
	for i := 0; i < d.Out; i++ {
		s := b2[i]
		for j := 0; j < d.Hidden; j++ {
			s += w2[i*d.Hidden+j] * h[j]
		}
		y[i] = s
	}
	return nil
}
