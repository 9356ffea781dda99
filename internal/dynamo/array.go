package dynamo

import (
	"fmt"
	"math"
)

// Array is a dense vars x nodes x time block of float64. Storage is laid out
// as [var][time][node] so that one variable at one step is a contiguous lane
// of node values and one variable over all steps is a contiguous row.
type Array struct {
	vars  int
	nodes int
	steps int
	data  []float64
}

func NewArray(vars, nodes, steps int) *Array {
	return &Array{
		vars:  vars,
		nodes: nodes,
		steps: steps,
		data:  make([]float64, vars*nodes*steps),
	}
}

// FromRows builds a single-node array from rows[var][time].
func FromRows(rows [][]float64) (*Array, error) {
	if len(rows) == 0 {
		return NewArray(0, 1, 0), nil
	}
	steps := len(rows[0])
	a := NewArray(len(rows), 1, steps)
	for v, row := range rows {
		if len(row) != steps {
			return nil, fmt.Errorf("row %d has %d steps, want %d: %w", v, len(row), steps, ErrShape)
		}
		copy(a.Row(v), row)
	}
	return a, nil
}

// FromNodeRows builds an array from rows[var][node][time].
func FromNodeRows(rows [][][]float64) (*Array, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return NewArray(len(rows), 0, 0), nil
	}
	nodes, steps := len(rows[0]), len(rows[0][0])
	a := NewArray(len(rows), nodes, steps)
	for v := range rows {
		if len(rows[v]) != nodes {
			return nil, fmt.Errorf("var %d has %d nodes, want %d: %w", v, len(rows[v]), nodes, ErrShape)
		}
		for n := range rows[v] {
			if len(rows[v][n]) != steps {
				return nil, fmt.Errorf("var %d node %d has %d steps, want %d: %w", v, n, len(rows[v][n]), steps, ErrShape)
			}
			for t, x := range rows[v][n] {
				a.Set(v, n, t, x)
			}
		}
	}
	return a, nil
}

func (a *Array) Dims() (vars, nodes, steps int) {
	return a.vars, a.nodes, a.steps
}

func (a *Array) Vars() int  { return a.vars }
func (a *Array) Nodes() int { return a.nodes }
func (a *Array) Steps() int { return a.steps }

func (a *Array) At(v, n, t int) float64 {
	return a.data[(v*a.steps+t)*a.nodes+n]
}

func (a *Array) Set(v, n, t int, x float64) {
	a.data[(v*a.steps+t)*a.nodes+n] = x
}

// Row returns variable v over all steps and nodes, aliased to the array.
func (a *Array) Row(v int) []float64 {
	w := a.steps * a.nodes
	return a.data[v*w : (v+1)*w]
}

// Lane returns variable v at step t across nodes, aliased to the array.
func (a *Array) Lane(v, t int) []float64 {
	off := (v*a.steps + t) * a.nodes
	return a.data[off : off+a.nodes]
}

// Series copies variable v at node n over time.
func (a *Array) Series(v, n int) []float64 {
	out := make([]float64, a.steps)
	for t := range out {
		out[t] = a.At(v, n, t)
	}
	return out
}

// Select copies the given rows, in order, into a new array.
func (a *Array) Select(rows []int) *Array {
	out := NewArray(len(rows), a.nodes, a.steps)
	for i, r := range rows {
		copy(out.Row(i), a.Row(r))
	}
	return out
}

func (a *Array) Fill(x float64) {
	for i := range a.data {
		a.data[i] = x
	}
}

func (a *Array) Clone() *Array {
	c := NewArray(a.vars, a.nodes, a.steps)
	copy(c.data, a.data)
	return c
}

// HasNaN reports whether any value is NaN.
func (a *Array) HasNaN() bool {
	for _, x := range a.data {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// Concat stacks arrays along the variable axis. Node and step counts must
// agree.
func Concat(arrs ...*Array) (*Array, error) {
	if len(arrs) == 0 {
		return NewArray(0, 0, 0), nil
	}
	nodes, steps := arrs[0].nodes, arrs[0].steps
	vars := 0
	for i, a := range arrs {
		if a.nodes != nodes || a.steps != steps {
			return nil, fmt.Errorf("array %d is %dx%d, want %dx%d: %w", i, a.nodes, a.steps, nodes, steps, ErrShape)
		}
		vars += a.vars
	}
	out := NewArray(vars, nodes, steps)
	off := 0
	for _, a := range arrs {
		copy(out.data[off:], a.data)
		off += len(a.data)
	}
	return out, nil
}
